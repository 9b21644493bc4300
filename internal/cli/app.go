package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/internal/debug"
	"github.com/dyike/CortexReport/internal/logger"
	"github.com/dyike/CortexReport/internal/service"
	"github.com/dyike/CortexReport/internal/trace"
)

// errReported marks a failure whose message was already shown to the user.
var errReported = errors.New("reported")

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	configPath string
	debug      bool

	cfg           *config.Config
	logger        *zap.Logger
	shutdownTrace func(context.Context) error

	// newService builds the report service; tests replace it.
	newService func(ctx context.Context, cfg *config.Config, opts ...service.Option) (*service.Service, error)
}

func newApp() *app {
	return &app{newService: service.New}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = logger.OrNop(cfg.Debug)

	shutdown, err := trace.Init(cmd.Context(), cfg.TracingEnabled, os.Stderr)
	if err != nil {
		return err
	}
	a.shutdownTrace = shutdown

	return debug.NewEinoDebugger(cfg, a.logger.Named("eino")).Initialize(cmd.Context())
}

func (a *app) teardown(cmd *cobra.Command) error {
	if a.shutdownTrace != nil {
		if err := a.shutdownTrace(context.WithoutCancel(cmd.Context())); err != nil {
			a.logger.Warn("trace shutdown failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

// service builds the report service with the app's logger.
func (a *app) service(cmd *cobra.Command, opts ...service.Option) (*service.Service, error) {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	opts = append([]service.Option{service.WithLogger(a.logger)}, opts...)
	return a.newService(cmd.Context(), a.cfg, opts...)
}

func (a *app) archive() (*service.Archive, error) {
	return service.NewArchive(a.cfg.ResultsDir)
}
