package cmd

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/auth"
	"github.com/kestrelmoor/harvester-cli/internal/browser"
	"github.com/kestrelmoor/harvester-cli/internal/config"
	"github.com/kestrelmoor/harvester-cli/internal/observability"
	"github.com/kestrelmoor/harvester-cli/internal/progress"
	"github.com/kestrelmoor/harvester-cli/internal/sessionstore"
)

// runtime bundles the long-lived pieces every subcommand needs.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *browser.Manager
	store   *sessionstore.Store
	auth    *auth.Controller
	sink    schemas.ProgressSink
}

// newRuntime builds the browser manager, session store, progress sinks and
// auth controller from the loaded configuration.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := observability.GetLogger()

	sinks := []schemas.ProgressSink{}
	logSink, err := progress.NewLogSink(logger)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, logSink)
	if cfg.Logger.Format != "console" {
		// Logs go elsewhere; keep a human-readable trace on stderr.
		consoleSink, err := progress.NewConsoleSink(os.Stderr)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, consoleSink)
	}
	sink := progress.NewMulti(sinks...)

	store, err := sessionstore.NewStore(logger)
	if err != nil {
		return nil, err
	}

	controller, err := auth.NewController(cfg.Auth, store, sink, logger)
	if err != nil {
		return nil, err
	}

	manager, err := browser.NewManager(ctx, cfg.Browser, cfg.Auth.Selectors, logger)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		store:   store,
		auth:    controller,
		sink:    sink,
	}, nil
}

// Close tears the browser down after all tabs are released.
func (r *runtime) Close() {
	r.manager.Shutdown()
}

// pageFactory adapts the browser manager to the orchestrator's factory
// interface.
type pageFactory struct {
	manager *browser.Manager
}

func (f *pageFactory) NewPage(ctx context.Context) (schemas.Page, error) {
	return f.manager.NewPage(ctx)
}
