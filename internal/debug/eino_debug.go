package debug

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino-ext/devops"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/config"
)

const defaultDevServerPort = "52538"

// EinoDebugger starts the eino devops server so the report chain can be
// inspected from the Eino Dev plugin. It must be initialised before the chain
// is compiled.
type EinoDebugger struct {
	config *config.Config
	logger *zap.Logger
}

func NewEinoDebugger(cfg *config.Config, logger *zap.Logger) *EinoDebugger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EinoDebugger{config: cfg, logger: logger}
}

func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	d.logger.Debug("initializing eino debug plugin", zap.Int("port", d.config.EinoDebugPort))
	if err := devops.Init(ctx, devops.WithDevServerPort(d.port())); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	d.logger.Info("eino debug server ready", zap.String("url", d.GetDebugURL()))
	return nil
}

// port is the dev server port as devops expects it; 0 keeps the plugin default.
func (d *EinoDebugger) port() string {
	if d.config == nil || d.config.EinoDebugPort <= 0 {
		return defaultDevServerPort
	}
	return strconv.Itoa(d.config.EinoDebugPort)
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return "http://localhost:" + d.port()
}
