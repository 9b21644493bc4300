package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/CortexReport/consts"
	"github.com/dyike/CortexReport/internal/agents"
	"github.com/dyike/CortexReport/internal/analysis"
	"github.com/dyike/CortexReport/internal/dataflows"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/ratelimit"
	"github.com/dyike/CortexReport/internal/trace"
)

// DefaultCompanyPacing is the pause between two symbols in the company stage.
const DefaultCompanyPacing = time.Second

type Deps struct {
	Market dataflows.MarketData
	Roles  agents.Roles
	// Pacer runs before every company-stage symbol except the first.
	Pacer  ratelimit.Limiter
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type Options struct {
	// RecomputeStrategyInputs reruns the market and company stages to build
	// the strategist's input instead of reusing their results.
	RecomputeStrategyInputs bool
	// CompanyConcurrency bounds parallel company-stage symbols. Values below
	// 2 keep the stage sequential.
	CompanyConcurrency int
}

// ReportGraph runs the four report stages (market, company, strategy,
// synthesis) as a compiled eino chain.
type ReportGraph struct {
	market     dataflows.MarketData
	roles      agents.Roles
	pacer      ratelimit.Limiter
	comparator *analysis.Comparator
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string

	runnable compose.Runnable[*models.ReportState, *models.ReportState]
}

func NewReportGraph(ctx context.Context, deps Deps, opts Options) (*ReportGraph, error) {
	if deps.Market == nil {
		return nil, errors.New("market data source is required")
	}
	if err := deps.Roles.Validate(); err != nil {
		return nil, err
	}
	if deps.Pacer == nil {
		deps.Pacer = ratelimit.NewDelay(nil, DefaultCompanyPacing)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	g := &ReportGraph{
		market:     deps.Market,
		roles:      deps.Roles,
		pacer:      deps.Pacer,
		comparator: analysis.NewComparator(deps.Market, deps.Logger),
		opts:       opts,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
	}

	chain := compose.NewChain[*models.ReportState, *models.ReportState]()
	chain.
		AppendLambda(compose.InvokableLambda(g.marketStage), compose.WithNodeName(consts.StageMarket)).
		AppendLambda(compose.InvokableLambda(g.companyStage), compose.WithNodeName(consts.StageCompany)).
		AppendLambda(compose.InvokableLambda(g.strategyStage), compose.WithNodeName(consts.StageStrategy)).
		AppendLambda(compose.InvokableLambda(g.synthesisStage), compose.WithNodeName(consts.StageSynthesis))

	runnable, err := chain.Compile(ctx, compose.WithGraphName(consts.ReportGraphName))
	if err != nil {
		return nil, fmt.Errorf("compile report graph: %w", err)
	}
	g.runnable = runnable
	return g, nil
}

// GenerateReport returns the team lead's final report for symbols.
func (g *ReportGraph) GenerateReport(ctx context.Context, symbols []string) (string, error) {
	report, err := g.Generate(ctx, symbols)
	if err != nil {
		return "", err
	}
	return report.Final, nil
}

// Generate runs every stage and returns the full report. Symbols are
// normalized; duplicates are kept.
func (g *ReportGraph) Generate(ctx context.Context, symbols []string) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = models.NormalizeSymbol(s); s != "" {
			normalized = append(normalized, s)
		}
	}

	state := models.NewReportState(g.newID(), normalized, g.now())
	runID := state.Report.ID
	ctx, span := trace.StartSpan(ctx, "report.generate",
		attribute.String("run_id", runID),
		attribute.StringSlice("symbols", normalized))

	log := g.logger.With(zap.String("run_id", runID))
	if traceID, _, ok := trace.IDs(ctx); ok {
		log = log.With(zap.String("trace_id", traceID))
	}

	log.Info("report started", zap.Strings("symbols", normalized))
	out, err := g.runnable.Invoke(ctx, state)
	if err != nil {
		if state.Err != nil {
			err = state.Err
		}
		trace.End(span, err)
		log.Error("report failed", zap.Error(err))
		return nil, err
	}
	trace.End(span, nil)

	report := out.Report
	report.FinishedAt = g.now()
	log.Info("report finished",
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (g *ReportGraph) runStage(ctx context.Context, name string, st *models.ReportState,
	fn func(ctx context.Context) error) (*models.ReportState, error) {
	ctx, span := trace.StartSpan(ctx, "report."+name, attribute.String("run_id", st.Report.ID))
	start := time.Now()
	err := fn(ctx)
	trace.End(span, err)
	if err != nil {
		return nil, st.Fail(err)
	}
	g.logger.Info("stage finished",
		zap.String("run_id", st.Report.ID),
		zap.String("stage", name),
		zap.Duration("elapsed", time.Since(start)))
	return st, nil
}

func (g *ReportGraph) marketStage(ctx context.Context, st *models.ReportState) (*models.ReportState, error) {
	return g.runStage(ctx, consts.StageMarket, st, func(ctx context.Context) error {
		res, err := g.analyzeMarket(ctx, st.Report.Symbols)
		if res != nil {
			st.Report.AddWarnings(res.comparison.Warnings...)
			st.Report.Performance = res.comparison.Performance
			st.Report.Companies = res.comparison.Info
			st.Report.MarketAnalysis = res.analysis
		}
		return err
	})
}

func (g *ReportGraph) companyStage(ctx context.Context, st *models.ReportState) (*models.ReportState, error) {
	return g.runStage(ctx, consts.StageCompany, st, func(ctx context.Context) error {
		analyses, warnings, err := g.analyzeCompanies(ctx, st.Report.Symbols)
		st.Report.AddWarnings(warnings...)
		if err != nil {
			return err
		}
		st.Report.CompanyAnalyses = analyses
		return nil
	})
}

func (g *ReportGraph) strategyStage(ctx context.Context, st *models.ReportState) (*models.ReportState, error) {
	return g.runStage(ctx, consts.StageStrategy, st, func(ctx context.Context) error {
		marketAnalysis, companies := st.Report.MarketAnalysis, st.Report.CompanyAnalyses
		if g.opts.RecomputeStrategyInputs {
			res, err := g.analyzeMarket(ctx, st.Report.Symbols)
			if err != nil {
				return err
			}
			marketAnalysis = res.analysis
			if companies, _, err = g.analyzeCompanies(ctx, st.Report.Symbols); err != nil {
				return err
			}
		}

		out, err := agents.Invoke(ctx, consts.StageStrategy, g.roles.Strategist, strategyPrompt(marketAnalysis, companies))
		if err != nil {
			return err
		}
		st.Report.Recommendations = out
		return nil
	})
}

func (g *ReportGraph) synthesisStage(ctx context.Context, st *models.ReportState) (*models.ReportState, error) {
	return g.runStage(ctx, consts.StageSynthesis, st, func(ctx context.Context) error {
		r := st.Report
		out, err := agents.Invoke(ctx, consts.StageSynthesis, g.roles.TeamLead,
			synthesisPrompt(r.MarketAnalysis, r.CompanyAnalyses, r.Recommendations))
		if err != nil {
			return err
		}
		r.Final = out
		return nil
	})
}

type marketResult struct {
	comparison *analysis.Comparison
	analysis   string
}

func (g *ReportGraph) analyzeMarket(ctx context.Context, symbols []string) (*marketResult, error) {
	cmp, err := g.comparator.Compare(ctx, symbols)
	if err != nil {
		return nil, err
	}
	res := &marketResult{comparison: cmp}
	if cmp.Empty() {
		return res, models.ErrNoMarketData
	}

	res.analysis, err = agents.Invoke(ctx, consts.StageMarket, g.roles.MarketAnalyst, marketPrompt(cmp.Performance, cmp.Symbols))
	if err != nil {
		return res, err
	}
	return res, nil
}

type companyResult struct {
	analysis models.CompanyAnalysis
	warnings []models.Warning
}

// analyzeCompanies runs the company researcher once per symbol, duplicates
// included, and returns the analyses in input order.
func (g *ReportGraph) analyzeCompanies(ctx context.Context, symbols []string) ([]models.CompanyAnalysis, []models.Warning, error) {
	results := make([]companyResult, len(symbols))

	if g.opts.CompanyConcurrency < 2 {
		for i, sym := range symbols {
			if i > 0 {
				if err := g.pacer.Wait(ctx); err != nil {
					return nil, collectWarnings(results), err
				}
			}
			r, err := g.analyzeCompany(ctx, sym)
			results[i] = r
			if err != nil {
				return nil, collectWarnings(results), err
			}
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.opts.CompanyConcurrency)
		for i, sym := range symbols {
			if i > 0 {
				if err := g.pacer.Wait(egCtx); err != nil {
					if werr := eg.Wait(); werr != nil {
						err = werr
					}
					return nil, collectWarnings(results), err
				}
			}
			eg.Go(func() error {
				r, err := g.analyzeCompany(egCtx, sym)
				results[i] = r
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, collectWarnings(results), err
		}
	}

	analyses := make([]models.CompanyAnalysis, 0, len(results))
	for _, r := range results {
		analyses = append(analyses, r.analysis)
	}
	return analyses, collectWarnings(results), nil
}

func (g *ReportGraph) analyzeCompany(ctx context.Context, symbol string) (companyResult, error) {
	res := companyResult{analysis: models.CompanyAnalysis{Symbol: symbol}}

	info := models.UnavailableCompanyInfo(symbol)
	data, err := g.market.FetchStock(ctx, symbol)
	switch {
	case isCancellation(err):
		return res, err
	case err != nil:
		res.warnings = append(res.warnings, g.warn(symbol, "company info unavailable: %v", err))
	case data != nil:
		info = data.Info
	}

	news, err := g.market.FetchNews(ctx, symbol)
	switch {
	case isCancellation(err):
		return res, err
	case err != nil:
		res.warnings = append(res.warnings, g.warn(symbol, "news unavailable: %v", err))
		news = nil
	}

	out, err := agents.Invoke(ctx, consts.StageCompany, g.roles.CompanyResearcher, companyPrompt(info, news))
	if err != nil {
		return res, err
	}
	res.analysis.Analysis = out
	return res, nil
}

func (g *ReportGraph) warn(symbol, format string, args ...any) models.Warning {
	w := models.NewWarning(symbol, consts.StageCompany, format, args...)
	g.logger.Warn(w.Message, zap.String("symbol", symbol), zap.String("stage", w.Stage))
	return w
}

func collectWarnings(results []companyResult) []models.Warning {
	var out []models.Warning
	for _, r := range results {
		out = append(out, r.warnings...)
	}
	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
