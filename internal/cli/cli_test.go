package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/internal/agents"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/ratelimit"
	"github.com/dyike/CortexReport/internal/service"
)

var epoch = time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)

type stubMarket struct {
	stocks map[string]*models.StockData
}

func (m *stubMarket) FetchHistory(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	if d, ok := m.stocks[symbol]; ok {
		return d.History, nil
	}
	return nil, models.ErrNoData
}

func (m *stubMarket) FetchOverview(ctx context.Context, symbol string) (models.CompanyInfo, error) {
	if d, ok := m.stocks[symbol]; ok {
		return d.Info, nil
	}
	return models.UnavailableCompanyInfo(symbol), models.ErrNoData
}

func (m *stubMarket) FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	return []models.NewsItem{}, nil
}

func (m *stubMarket) FetchStock(ctx context.Context, symbol string) (*models.StockData, error) {
	if d, ok := m.stocks[symbol]; ok {
		return d, nil
	}
	return nil, models.ErrNoData
}

func stock(symbol string, last float64) *models.StockData {
	bars := make([]models.Bar, 40)
	for i := range bars {
		bars[i] = models.Bar{Date: epoch.AddDate(0, 0, i-39), Close: 100, Volume: 1234567}
	}
	bars[39].Close = last
	return &models.StockData{
		History: models.NewPriceHistory(symbol, bars),
		Info:    models.NewCompanyInfo(symbol, symbol+" Inc", "TECHNOLOGY", "1", "s"),
	}
}

func echoRoles() agents.Roles {
	role := func(name string) agents.Role {
		return agents.NewRoleFunc(name, func(_ context.Context, p string) (string, error) {
			return name + " says ok", nil
		})
	}
	return agents.Roles{
		MarketAnalyst:     role("market_analyst"),
		CompanyResearcher: role("company_researcher"),
		Strategist:        role("stock_strategist"),
		TeamLead:          role("team_lead"),
	}
}

// scratch moves the test into an empty directory with test keys configured.
func scratch(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ALPHAVANTAGE_API_KEY", "test-key")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("RESULTS_DIR", filepath.Join(dir, "results"))
}

// runCLI executes the root command with a stubbed market and echo roles.
func runCLI(t *testing.T, market *stubMarket, args ...string) (string, string, error) {
	t.Helper()
	a := newApp()
	a.newService = func(ctx context.Context, cfg *config.Config, opts ...service.Option) (*service.Service, error) {
		opts = append(opts,
			service.WithMarketData(market),
			service.WithRoles(echoRoles()),
			service.WithClock(ratelimit.NewFakeClock(epoch)),
			service.WithIDGenerator(func() string { return "run-7" }),
		)
		return service.New(ctx, cfg, opts...)
	}
	cmd := newRootCmd(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	scratch(t)
	out, _, err := runCLI(t, &stubMarket{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "CortexReport "+version)
}

func TestConfigShowHidesSecrets(t *testing.T) {
	scratch(t)
	out, _, err := runCLI(t, &stubMarket{}, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "deepseek")
	assert.Contains(t, out, "configured")
	assert.NotContains(t, out, "test-key")
	assert.NotContains(t, out, "sk-test")
}

func TestReportCommand(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{
		"AAPL": stock("AAPL", 105),
		"MSFT": stock("MSFT", 98),
	}}
	out, _, err := runCLI(t, market, "report", "-i=false", "--save", "aapl,", "MSFT")
	require.NoError(t, err)

	assert.Contains(t, out, "Generating report for AAPL, MSFT")
	assert.Contains(t, out, "team_lead says ok")
	assert.Contains(t, out, "+5.00%")
	assert.Contains(t, out, "-2.00%")
	assert.Contains(t, out, "Saved ")

	entries, err := filepath.Glob(filepath.Join("results", "AAPL_MSFT", "*_run-7.md"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReportCommandWritesOut(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{"AAPL": stock("AAPL", 110)}}
	_, _, err := runCLI(t, market, "report", "-i=false", "--out", "out", "AAPL")
	require.NoError(t, err)

	entries, err := os.ReadDir("out")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "AAPL_"))
}

func TestReportCommandPrintsGenericFailure(t *testing.T) {
	scratch(t)
	_, stderr, err := runCLI(t, &stubMarket{}, "report", "-i=false", "ZZZZ")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, msgNoMarketData)
}

func TestReportCommandRejectsDemoKey(t *testing.T) {
	scratch(t)
	t.Setenv("ALPHAVANTAGE_API_KEY", "demo")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"report", "-i=false", "AAPL"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrDemoMarketAPIKey)
}

func TestHistoryCommand(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{"AAPL": stock("AAPL", 110)}}
	out, _, err := runCLI(t, market, "history", "aapl", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL daily prices")
	assert.Contains(t, out, "+10.00%")
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, epoch.Format("2006-01-02"))
	assert.NotContains(t, out, epoch.AddDate(0, 0, -3).Format("2006-01-02"))

	_, _, err = runCLI(t, market, "history", "MSFT")
	assert.ErrorContains(t, err, "no price data for MSFT")
}

func TestChartCommand(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{"AAPL": stock("AAPL", 110)}}
	out, stderr, err := runCLI(t, market, "chart", "AAPL,MSFT", "--sma", "5", "--out", "c.html")
	require.NoError(t, err)
	assert.Contains(t, out, "Chart written to c.html")
	assert.Contains(t, stderr, "MSFT")

	html, err := os.ReadFile("c.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "AAPL SMA(5)")
}

func TestReportsCommands(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{"AAPL": stock("AAPL", 110)}}

	out, _, err := runCLI(t, market, "reports", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived reports")

	_, _, err = runCLI(t, market, "report", "-i=false", "--save", "AAPL")
	require.NoError(t, err)

	out, _, err = runCLI(t, market, "reports", "list")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(path, "AAPL/"), path)
	assert.True(t, strings.HasSuffix(path, "_run-7.md"), path)

	out, _, err = runCLI(t, market, "reports", "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "team_lead says ok")

	_, _, err = runCLI(t, market, "reports", "show", "../secrets.md")
	assert.Error(t, err)
}

func TestRenderReportOrdersPerformance(t *testing.T) {
	r := &models.Report{
		ID:          "r",
		Symbols:     []string{"MSFT", "AAPL"},
		Performance: models.Performance{"AAPL": 5, "MSFT": -2, "ZZ": 1},
		Final:       "done",
		Warnings:    []models.Warning{models.NewWarning("TSLA", "market", "skipped")},
	}
	assert.Equal(t, []string{"MSFT", "AAPL", "ZZ"}, performanceOrder(r))

	out := RenderReport(r)
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "[market] TSLA: skipped")
}

func TestValidateSymbols(t *testing.T) {
	assert.NoError(t, validateSymbols("aapl, msft"))
	assert.NoError(t, validateSymbols("BRK.B"))
	assert.NoError(t, validateSymbols("BRK/B, ^GSPC"))
	assert.ErrorIs(t, validateSymbols(" , "), models.ErrNoSymbols)
	assert.Error(t, validateSymbols(42))
}

func TestCommandsRejectEmptySymbols(t *testing.T) {
	scratch(t)
	market := &stubMarket{stocks: map[string]*models.StockData{}}
	for _, args := range [][]string{
		{"chart", " , "},
		{"schedule", "--cron", "0 * * * * *", ","},
	} {
		_, _, err := runCLI(t, market, args...)
		assert.ErrorIs(t, err, models.ErrNoSymbols, args[0])
	}
}
