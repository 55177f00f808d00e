// Package browser owns the Chrome process and the tabs opened inside it. A
// Manager wraps one exec allocator; Sessions are tabs handed out to the
// core, each implementing schemas.Page.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// Manager owns the allocator context for a single Chrome process and tracks
// the sessions opened against it. Shutdown waits for every open session to
// close before tearing the process down.
type Manager struct {
	cfg    config.BrowserConfig
	probes config.AuthSelectors
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewManager starts the allocator. Chrome itself launches lazily with the
// first session. The probe selectors are handed to every session so Signals
// can classify pages without reaching back into configuration.
func NewManager(ctx context.Context, cfg config.BrowserConfig, probes config.AuthSelectors, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Manager{
		cfg:         cfg,
		probes:      probes,
		logger:      logger.Named("browser"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// NewPage opens a fresh tab and returns it as a Session. The tab's lifetime
// is bound to the manager, not to ctx; ctx only bounds the open itself.
func (m *Manager) NewPage(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.sessions.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Run a no-op to force the target (and on the first call, the Chrome
	// process) into existence while we can still report the error.
	runCtx, cancel := CombineContext(tabCtx, ctx)
	err := chromedp.Run(runCtx)
	cancel()
	if err != nil {
		tabCancel()
		m.sessions.Done()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	s := newSession(tabCtx, tabCancel, m.cfg, m.probes, m.logger)
	s.SetOnClose(m.sessions.Done)
	m.logger.Debug("Opened browser tab.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown closes the Chrome process after all sessions have closed. It is
// idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.sessions.Wait()
	m.allocCancel()
	m.logger.Debug("Browser manager shut down.")
}
