package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dyike/CortexReport/consts"
	"github.com/dyike/CortexReport/internal/agents"
	"github.com/dyike/CortexReport/internal/cache"
	"github.com/dyike/CortexReport/internal/dataflows"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/ratelimit"
	"github.com/dyike/CortexReport/internal/trace"
)

var epoch = time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)

// fakeMarket serves prepared data and counts calls per method and symbol.
type fakeMarket struct {
	mu       sync.Mutex
	stocks   map[string]*models.StockData
	stockErr map[string]error
	news     map[string][]models.NewsItem
	newsErr  map[string]error
	calls    map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		stocks:   map[string]*models.StockData{},
		stockErr: map[string]error{},
		news:     map[string][]models.NewsItem{},
		newsErr:  map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeMarket) record(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
}

func (f *fakeMarket) FetchHistory(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	f.record("history:" + symbol)
	if d, ok := f.stocks[symbol]; ok {
		return d.History, nil
	}
	return nil, models.ErrNoData
}

func (f *fakeMarket) FetchOverview(ctx context.Context, symbol string) (models.CompanyInfo, error) {
	f.record("overview:" + symbol)
	if d, ok := f.stocks[symbol]; ok {
		return d.Info, d.InfoErr
	}
	return models.UnavailableCompanyInfo(symbol), models.ErrNoData
}

func (f *fakeMarket) FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	f.record("news:" + symbol)
	if err := f.newsErr[symbol]; err != nil {
		return []models.NewsItem{}, err
	}
	return f.news[symbol], nil
}

func (f *fakeMarket) FetchStock(ctx context.Context, symbol string) (*models.StockData, error) {
	f.record("stock:" + symbol)
	if err := f.stockErr[symbol]; err != nil {
		return nil, err
	}
	if d, ok := f.stocks[symbol]; ok {
		return d, nil
	}
	return nil, models.ErrNoData
}

// history builds 100 daily bars whose close moves from 100 at t-30 to last.
func history(symbol string, last float64) *models.PriceHistory {
	bars := make([]models.Bar, 100)
	for i := range bars {
		bars[i] = models.Bar{Date: epoch.AddDate(0, 0, i-99), Close: 100}
	}
	bars[99].Close = last
	return models.NewPriceHistory(symbol, bars)
}

func stockData(symbol, name string, last float64) *models.StockData {
	return &models.StockData{
		History: history(symbol, last),
		Info:    models.NewCompanyInfo(symbol, name, "TECHNOLOGY", "1000", name+" summary"),
	}
}

// recorder builds roles that answer with a marker and keep every prompt.
type recorder struct {
	mu      sync.Mutex
	prompts map[string][]string
}

func (r *recorder) role(name string, answer func(prompt string) (string, error)) agents.Role {
	return agents.NewRoleFunc(name, func(_ context.Context, prompt string) (string, error) {
		r.mu.Lock()
		if r.prompts == nil {
			r.prompts = map[string][]string{}
		}
		r.prompts[name] = append(r.prompts[name], prompt)
		r.mu.Unlock()
		return answer(prompt)
	})
}

func (r *recorder) get(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts[name]...)
}

func markerRoles(rec *recorder) agents.Roles {
	return agents.Roles{
		MarketAnalyst: rec.role(consts.MarketAnalyst, func(string) (string, error) {
			return "MARKET-1: AAPL outperformed MSFT", nil
		}),
		CompanyResearcher: rec.role(consts.CompanyResearcher, func(p string) (string, error) {
			name := strings.TrimPrefix(strings.SplitN(p, " in the ", 2)[0], "Provide an analysis for ")
			return "COMPANY-2: " + name, nil
		}),
		Strategist: rec.role(consts.StockStrategist, func(string) (string, error) {
			return "STRATEGY-3: buy AAPL", nil
		}),
		TeamLead: rec.role(consts.TeamLead, func(p string) (string, error) {
			return p + "\nFINAL-4: 1. MSFT 2. AAPL", nil
		}),
	}
}

func newTestGraph(t *testing.T, market dataflows.MarketData, roles agents.Roles, opts Options) (*ReportGraph, *ratelimit.FakeClock) {
	t.Helper()
	clock := ratelimit.NewFakeClock(epoch)
	g, err := NewReportGraph(context.Background(), Deps{
		Market: market,
		Roles:  roles,
		Pacer:  ratelimit.NewDelay(clock, DefaultCompanyPacing),
		Now:    clock.Now,
		NewID:  func() string { return "run-1" },
	}, opts)
	require.NoError(t, err)
	return g, clock
}

func TestGenerateEndToEnd(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 105)
	market.stocks["MSFT"] = stockData("MSFT", "Microsoft Corp", 98)
	market.news["AAPL"] = []models.NewsItem{{Raw: []byte(`{"title":"iPhone"}`)}}
	rec := &recorder{}
	g, clock := newTestGraph(t, market, markerRoles(rec), Options{})

	report, err := g.Generate(context.Background(), []string{"aapl", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.ID)
	assert.InDelta(t, 5.0, report.Performance["AAPL"], 1e-9)
	assert.InDelta(t, -2.0, report.Performance["MSFT"], 1e-9)
	assert.Equal(t, "Apple Inc", report.Companies["AAPL"].Name)
	assert.Equal(t, "Microsoft Corp", report.Companies["MSFT"].Name)
	assert.Empty(t, report.Warnings)

	final := report.Final
	i1 := strings.Index(final, "MARKET-1")
	i2 := strings.Index(final, "COMPANY-2")
	i3 := strings.Index(final, "STRATEGY-3")
	i4 := strings.Index(final, "FINAL-4")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0 && i4 >= 0, final)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
	assert.Less(t, i3, i4)

	market1 := rec.get(consts.MarketAnalyst)
	require.Len(t, market1, 1)
	assert.Equal(t, "Compare these stock performances:\nAAPL: +5.00%\nMSFT: -2.00%", market1[0])

	company := rec.get(consts.CompanyResearcher)
	require.Len(t, company, 2)
	assert.Equal(t, "Provide an analysis for Apple Inc in the TECHNOLOGY sector.\n"+
		"Market Cap: 1000\nSummary: Apple Inc summary\nLatest News: [{\"title\":\"iPhone\"}]", company[0])
	assert.Contains(t, company[1], "Latest News: []")

	strategy := rec.get(consts.StockStrategist)
	require.Len(t, strategy, 1)
	assert.True(t, strings.HasPrefix(strategy[0], "Based on the market analysis: MARKET-1"))
	assert.Contains(t, strategy[0], "AAPL: COMPANY-2: Apple Inc")
	assert.True(t, strings.HasSuffix(strategy[0], "which stocks would you recommend for investment?"))

	lead := rec.get(consts.TeamLead)
	require.Len(t, lead, 1)
	for _, part := range []string{"Market Analysis:\nMARKET-1", "COMPANY-2: Apple Inc", "COMPANY-2: Microsoft Corp",
		"Stock Recommendations:\nSTRATEGY-3", "Generate a final ranked list in ascending order on which should I buy."} {
		assert.Contains(t, lead[0], part)
	}

	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps(), "one pause between two symbols")
	assert.Equal(t, 1, market.calls["news:AAPL"])
}

func TestGenerateLogsCarryTraceID(t *testing.T) {
	prev := otel.GetTracerProvider()
	ctx := context.Background()
	shutdown, err := trace.Init(ctx, true, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = shutdown(ctx)
		otel.SetTracerProvider(prev)
	})

	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 101)
	core, logs := observer.New(zapcore.InfoLevel)
	clock := ratelimit.NewFakeClock(epoch)
	g, err := NewReportGraph(ctx, Deps{
		Market: market,
		Roles:  markerRoles(&recorder{}),
		Pacer:  ratelimit.NewDelay(clock, DefaultCompanyPacing),
		Now:    clock.Now,
		NewID:  func() string { return "run-1" },
		Logger: zap.New(core),
	}, Options{})
	require.NoError(t, err)

	_, err = g.Generate(ctx, []string{"AAPL"})
	require.NoError(t, err)

	for _, msg := range []string{"report started", "report finished"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		fields := entries[0].ContextMap()
		assert.Equal(t, "run-1", fields["run_id"])
		assert.Len(t, fields["trace_id"], 32, msg)
	}
}

func TestGenerateReportReturnsFinal(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 101)
	g, _ := newTestGraph(t, market, markerRoles(&recorder{}), Options{})

	final, err := g.GenerateReport(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Contains(t, final, "FINAL-4")
}

func TestGenerateNoMarketData(t *testing.T) {
	rec := &recorder{}
	g, _ := newTestGraph(t, newFakeMarket(), markerRoles(rec), Options{})

	_, err := g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrNoMarketData)

	_, err = g.Generate(context.Background(), []string{"NOPE"})
	assert.ErrorIs(t, err, models.ErrNoMarketData)
	assert.Empty(t, rec.get(consts.MarketAnalyst))
}

func TestGenerateAbsorbsPerSymbolFailures(t *testing.T) {
	market := newFakeMarket()
	aapl := stockData("AAPL", "Apple Inc", 105)
	aapl.Info = models.UnavailableCompanyInfo("AAPL")
	aapl.InfoErr = errors.New("overview: connection reset")
	market.stocks["AAPL"] = aapl
	market.stockErr["TSLA"] = fmt.Errorf("daily series for TSLA: %w", models.ErrNoData)
	market.newsErr["AAPL"] = errors.New("news: timeout")
	rec := &recorder{}
	g, _ := newTestGraph(t, market, markerRoles(rec), Options{})

	report, err := g.Generate(context.Background(), []string{"AAPL", "TSLA"})
	require.NoError(t, err)
	assert.Contains(t, report.Performance, "AAPL")
	assert.NotContains(t, report.Performance, "TSLA")

	company := rec.get(consts.CompanyResearcher)
	require.Len(t, company, 2)
	assert.Contains(t, company[0], "Provide an analysis for AAPL in the N/A sector.")
	assert.Contains(t, company[0], "Summary: Information temporarily unavailable")
	assert.Contains(t, company[1], "Provide an analysis for TSLA in the N/A sector.")

	var stages []string
	for _, w := range report.Warnings {
		stages = append(stages, w.Stage+":"+w.Symbol)
	}
	assert.ElementsMatch(t, []string{"market:AAPL", "market:TSLA", "company:AAPL", "company:TSLA"}, stages)
}

func TestGenerateRoleFailureIsFatal(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 105)
	roles := markerRoles(&recorder{})
	boom := errors.New("model overloaded")
	roles.Strategist = agents.NewRoleFunc(consts.StockStrategist, func(context.Context, string) (string, error) {
		return "", boom
	})
	g, _ := newTestGraph(t, market, roles, Options{})

	_, err := g.Generate(context.Background(), []string{"AAPL"})
	var roleErr *agents.RoleError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, consts.StageStrategy, roleErr.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestDuplicateSymbols(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 105)
	rec := &recorder{}
	g, _ := newTestGraph(t, market, markerRoles(rec), Options{})

	report, err := g.Generate(context.Background(), []string{"AAPL", "aapl"})
	require.NoError(t, err)
	assert.Len(t, report.CompanyAnalyses, 2)
	assert.Len(t, rec.get(consts.CompanyResearcher), 2)

	strategy := rec.get(consts.StockStrategist)[0]
	assert.Equal(t, 1, strings.Count(strategy, "AAPL: COMPANY-2"))
	assert.Equal(t, "Compare these stock performances:\nAAPL: +5.00%", rec.get(consts.MarketAnalyst)[0])
}

func TestRecomputeStrategyInputs(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 105)
	rec := &recorder{}
	g, _ := newTestGraph(t, market, markerRoles(rec), Options{RecomputeStrategyInputs: true})

	_, err := g.Generate(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Len(t, rec.get(consts.MarketAnalyst), 2)
	assert.Len(t, rec.get(consts.CompanyResearcher), 2)
	assert.Len(t, rec.get(consts.StockStrategist), 1)
}

func TestConcurrentCompanyStageKeepsOrder(t *testing.T) {
	market := newFakeMarket()
	symbols := []string{"AAPL", "MSFT", "GOOGL", "AMZN"}
	for i, s := range symbols {
		market.stocks[s] = stockData(s, s+" Inc", 100+float64(i))
	}
	rec := &recorder{}
	g, clock := newTestGraph(t, market, markerRoles(rec), Options{CompanyConcurrency: 3})

	report, err := g.Generate(context.Background(), symbols)
	require.NoError(t, err)
	require.Len(t, report.CompanyAnalyses, 4)
	for i, s := range symbols {
		assert.Equal(t, s, report.CompanyAnalyses[i].Symbol)
		assert.Equal(t, "COMPANY-2: "+s+" Inc", report.CompanyAnalyses[i].Analysis)
	}
	assert.Len(t, clock.Sleeps(), 3)
}

func TestCancelledContext(t *testing.T) {
	market := newFakeMarket()
	market.stocks["AAPL"] = stockData("AAPL", "Apple Inc", 105)
	g, _ := newTestGraph(t, market, markerRoles(&recorder{}), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, []string{"AAPL"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReportGraphValidates(t *testing.T) {
	_, err := NewReportGraph(context.Background(), Deps{Roles: markerRoles(&recorder{})}, Options{})
	assert.Error(t, err)
	_, err = NewReportGraph(context.Background(), Deps{Market: newFakeMarket()}, Options{})
	assert.Error(t, err)
}

// The memo keeps a full report run to one history and one overview call per
// symbol even though both the market and company stages read them.
func TestMemoizedUpstreamCalls(t *testing.T) {
	var daily, overview, news atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("function") {
		case "TIME_SERIES_DAILY":
			daily.Add(1)
			fmt.Fprint(w, dailyBody(q.Get("symbol")))
		case "OVERVIEW":
			overview.Add(1)
			fmt.Fprintf(w, `{"Name":"%s Inc","Sector":"TECHNOLOGY","MarketCapitalization":"1","Description":"d"}`, q.Get("symbol"))
		case "NEWS_SENTIMENT":
			news.Add(1)
			fmt.Fprint(w, `{"feed":[{"title":"t"}]}`)
		}
	}))
	defer srv.Close()

	clock := ratelimit.NewFakeClock(epoch)
	client, err := dataflows.NewAlphaVantageClient(dataflows.Options{
		APIKey:  "k",
		BaseURL: srv.URL,
		Clock:   clock,
		Limiter: ratelimit.NewSpacer(clock, dataflows.DefaultCallInterval),
		Cache:   cache.NewTTL[string, *models.StockData](dataflows.DefaultCacheTTL, clock),
	})
	require.NoError(t, err)

	g, err := NewReportGraph(context.Background(), Deps{
		Market: client,
		Roles:  markerRoles(&recorder{}),
		Pacer:  ratelimit.NewDelay(clock, DefaultCompanyPacing),
		Now:    clock.Now,
	}, Options{RecomputeStrategyInputs: true})
	require.NoError(t, err)

	report, err := g.Generate(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, report.Performance, 2)
	assert.Equal(t, int32(2), daily.Load())
	assert.Equal(t, int32(2), overview.Load())
	assert.Equal(t, int32(4), news.Load(), "news is fetched per company analysis")
}

func dailyBody(symbol string) string {
	entries := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		date := epoch.AddDate(0, 0, i-39).Format("2006-01-02")
		entries = append(entries, fmt.Sprintf(
			`"%s":{"1. open":"1","2. high":"1","3. low":"1","4. close":"%d","5. volume":"10"}`, date, 100+i))
	}
	return `{"Meta Data":{"2. Symbol":"` + symbol + `"},"Time Series (Daily)":{` + strings.Join(entries, ",") + `}}`
}
