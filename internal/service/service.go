// Package service wires configuration, market data, analysis roles and the
// report pipeline behind the entry points used by the CLI, the HTTP server
// and the scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/internal/agents"
	"github.com/dyike/CortexReport/internal/cache"
	"github.com/dyike/CortexReport/internal/dataflows"
	"github.com/dyike/CortexReport/internal/graph"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/ratelimit"
)

// ErrReportsDisabled is returned by report entry points on a service built
// WithoutReports.
var ErrReportsDisabled = errors.New("report generation is not configured on this service")

const (
	SourceAlphaVantage = "alphavantage"
	SourceYahoo        = "yahoo"
)

type Service struct {
	cfg    *config.Config
	market dataflows.MarketData
	// set when the service was built WithoutReports and no usable market key
	marketErr error
	graph     *graph.ReportGraph
	archive   *Archive
	logger    *zap.Logger
}

type settings struct {
	roles     *agents.Roles
	market    dataflows.MarketData
	clock     ratelimit.Clock
	logger    *zap.Logger
	callbacks []callbacks.Handler
	newID     func() string
	noReports bool
}

type Option func(*settings)

// WithRoles replaces the chat-model roles, e.g. with scripted ones in tests.
func WithRoles(roles agents.Roles) Option {
	return func(s *settings) { s.roles = &roles }
}

func WithMarketData(m dataflows.MarketData) Option {
	return func(s *settings) { s.market = m }
}

// WithClock drives rate limiting, pacing and cache expiry.
func WithClock(c ratelimit.Clock) Option {
	return func(s *settings) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithCallbacks adds eino callback handlers to every role invocation.
func WithCallbacks(h ...callbacks.Handler) Option {
	return func(s *settings) { s.callbacks = append(s.callbacks, h...) }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *settings) { s.newID = fn }
}

// WithoutReports skips building the analysis roles and the report pipeline,
// so price history and charts work without an LLM API key.
func WithoutReports() Option {
	return func(s *settings) { s.noReports = true }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st := &settings{}
	for _, opt := range opts {
		opt(st)
	}
	if st.logger == nil {
		st.logger = zap.NewNop()
	}
	if st.clock == nil {
		st.clock = ratelimit.RealClock()
	}

	market := st.market
	var marketErr error
	if market == nil {
		marketErr = cfg.ValidateMarketKey()
	}
	if marketErr != nil && !st.noReports {
		return nil, marketErr
	}
	if market == nil && marketErr == nil {
		client, err := dataflows.NewAlphaVantageClient(dataflows.Options{
			APIKey:      cfg.AlphaVantageAPIKey,
			BaseURL:     cfg.AlphaVantageBaseURL,
			Limiter:     ratelimit.NewSpacer(st.clock, cfg.CallInterval),
			Cache:       cache.NewTTL[string, *models.StockData](cfg.CacheTTL, st.clock),
			Clock:       st.clock,
			HTTPTimeout: cfg.HTTPTimeout,
			Logger:      st.logger.Named("alphavantage"),
		})
		if err != nil {
			return nil, err
		}
		market = client
	}

	archive, err := NewArchive(cfg.ResultsDir)
	if err != nil {
		return nil, err
	}
	svc := &Service{cfg: cfg, market: market, marketErr: marketErr, archive: archive, logger: st.logger}
	if st.noReports {
		return svc, nil
	}

	var roles agents.Roles
	if st.roles != nil {
		roles = *st.roles
	} else {
		cm, err := agents.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		handlers := append([]callbacks.Handler{agents.NewLogHandler(st.logger.Named("roles"))}, st.callbacks...)
		if roles, err = agents.NewRoles(ctx, cm, handlers...); err != nil {
			return nil, err
		}
	}

	g, err := graph.NewReportGraph(ctx, graph.Deps{
		Market: market,
		Roles:  roles,
		Pacer:  ratelimit.NewDelay(st.clock, cfg.CompanyPacing),
		Logger: st.logger.Named("report"),
		Now:    st.clock.Now,
		NewID:  st.newID,
	}, graph.Options{
		RecomputeStrategyInputs: cfg.RecomputeStrategyInputs,
		CompanyConcurrency:      cfg.CompanyConcurrency,
	})
	if err != nil {
		return nil, err
	}
	svc.graph = g
	return svc, nil
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) Archive() *Archive { return s.archive }

// GenerateReport runs the full pipeline and returns the final report text.
func (s *Service) GenerateReport(ctx context.Context, symbols []string) (string, error) {
	if s.graph == nil {
		return "", ErrReportsDisabled
	}
	return s.graph.GenerateReport(ctx, symbols)
}

// Generate runs the full pipeline and returns the structured report.
func (s *Service) Generate(ctx context.Context, symbols []string) (*models.Report, error) {
	if s.graph == nil {
		return nil, ErrReportsDisabled
	}
	if len(models.ParseSymbols(strings.Join(symbols, ","))) == 0 {
		return nil, models.ErrNoSymbols
	}
	return s.graph.Generate(ctx, symbols)
}

// History returns the daily bars for symbol through the shared memo, so
// charting right after a report costs no upstream calls.
func (s *Service) History(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	if s.market == nil {
		return nil, s.marketErr
	}
	symbol = models.NormalizeSymbol(symbol)
	data, err := s.market.FetchStock(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if data.History == nil {
		return nil, fmt.Errorf("history for %s: %w", symbol, models.ErrNoData)
	}
	return data.History, nil
}

// HistorySource picks where chart data comes from.
func (s *Service) HistorySource(name string) (dataflows.HistorySource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SourceAlphaVantage:
		if s.market == nil {
			return nil, s.marketErr
		}
		return dataflows.HistoryFunc(s.History), nil
	case SourceYahoo:
		return dataflows.NewYahooHistory(0), nil
	default:
		return nil, fmt.Errorf("unknown history source %q", name)
	}
}

// Histories loads every symbol from src. Symbols that fail are reported in
// the returned warnings and left out.
func Histories(ctx context.Context, src dataflows.HistorySource, symbols []string) ([]*models.PriceHistory, []models.Warning) {
	var (
		out      []*models.PriceHistory
		warnings []models.Warning
	)
	normalized := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		normalized = append(normalized, models.NormalizeSymbol(sym))
	}
	for _, sym := range models.UniqueSymbols(normalized) {
		h, err := src.History(ctx, sym)
		if err != nil {
			warnings = append(warnings, models.NewWarning(sym, "chart", "%v", err))
			continue
		}
		out = append(out, h)
	}
	return out, warnings
}
