package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/internal/models"
)

// Generator produces a report for a set of symbols.
type Generator interface {
	Generate(ctx context.Context, symbols []string) (*models.Report, error)
}

// Saver persists a finished report and returns where it went.
type Saver interface {
	Save(r *models.Report) (string, error)
}

// Scheduler runs report generation on a cron schedule (seconds field
// included) and archives each result.
type Scheduler struct {
	cron    *cron.Cron
	gen     Generator
	saver   Saver
	symbols []string
	logger  *zap.Logger
	ctx     context.Context

	// held while a report runs; overlapping runs are refused
	running sync.Mutex
}

func NewScheduler(ctx context.Context, gen Generator, saver Saver, symbols []string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		gen:     gen,
		saver:   saver,
		symbols: symbols,
		logger:  logger,
		ctx:     ctx,
	}
}

// Register adds the report job under spec, e.g. "0 30 16 * * 1-5".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runJob); err != nil {
		return fmt.Errorf("register report job %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("symbols", s.symbols))
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow generates and saves one report immediately.
func (s *Scheduler) RunNow(ctx context.Context) (string, error) {
	if !s.running.TryLock() {
		return "", fmt.Errorf("a report run is already in progress")
	}
	defer s.running.Unlock()

	report, err := s.gen.Generate(ctx, s.symbols)
	if err != nil {
		return "", err
	}
	path, err := s.saver.Save(report)
	if err != nil {
		return "", fmt.Errorf("save report %s: %w", report.ID, err)
	}
	return path, nil
}

func (s *Scheduler) runJob() {
	if err := s.ctx.Err(); err != nil {
		return
	}
	s.logger.Info("scheduled report started", zap.Strings("symbols", s.symbols))
	path, err := s.RunNow(s.ctx)
	if err != nil {
		s.logger.Error("scheduled report failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled report saved", zap.String("path", path))
}
