// Package auth establishes an authenticated browser session: restore a
// persisted artifact when one works, fall back to operator-driven manual
// login when it does not, and persist the fresh session for next time.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// State names the controller's position in the authentication flow. It
// exists for logging; callers observe outcomes through errors and events.
type State string

const (
	StateNoSession      State = "no_session"
	StateLoadingSession State = "loading_session"
	StateManualLogin    State = "manual_login_pending"
	StateAuthenticated  State = "authenticated"
	StateFailed         State = "failed"
)

// Store is the artifact persistence surface the controller needs.
type Store interface {
	Load(path string) (*schemas.SessionArtifact, error)
	Save(artifact *schemas.SessionArtifact, path string) error
}

// Controller drives a Page from cold start to an authenticated session.
type Controller struct {
	cfg    config.AuthConfig
	store  Store
	sink   schemas.ProgressSink
	clock  Clock
	logger *zap.Logger

	state State
}

// NewController wires a controller. sink may observe warnings during
// restore and polling; it must not be nil (use a nop sink).
func NewController(cfg config.AuthConfig, store Store, sink schemas.ProgressSink, logger *zap.Logger) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Controller{
		cfg:    cfg,
		store:  store,
		sink:   sink,
		clock:  SystemClock{},
		logger: logger.Named("auth"),
	}, nil
}

func (c *Controller) setState(next State) {
	if c.state != next {
		c.logger.Debug("Auth state changed.",
			zap.String("from", string(c.state)),
			zap.String("to", string(next)))
		c.state = next
	}
}

// EnsureAuthenticated leaves page authenticated or returns an error. The
// fast path restores a stored artifact and verifies it against the canary
// URL; every other path goes through manual login. A corrupt or rejected
// artifact is reported as a warning, never reused and never trusted.
func (c *Controller) EnsureAuthenticated(ctx context.Context, page schemas.Page) error {
	c.setState(StateLoadingSession)

	artifact, err := c.store.Load(c.cfg.SessionPath)
	if err != nil {
		var corrupt *schemas.CorruptSessionError
		if !errors.As(err, &corrupt) {
			c.setState(StateFailed)
			return err
		}
		c.logger.Warn("Stored session artifact is corrupt; falling back to manual login.",
			zap.String("path", c.cfg.SessionPath), zap.Error(err))
		c.sink.OnEvent(schemas.WarningEvent(c.cfg.CanaryURL, "stored session artifact is corrupt, manual login required"))
		artifact = nil
	}

	if artifact != nil {
		state, err := c.tryRestore(ctx, page, artifact)
		if err != nil {
			c.setState(StateFailed)
			return err
		}
		switch state {
		case schemas.AuthAuthenticated:
			c.setState(StateAuthenticated)
			c.logger.Info("Session restored from artifact.", zap.Time("created_at", artifact.CreatedAt))
			return nil
		case schemas.AuthRateLimited:
			c.setState(StateFailed)
			return &schemas.RateLimitError{URL: c.cfg.CanaryURL}
		default:
			c.logger.Warn("Stored session was rejected by the remote side.",
				zap.String("state", string(state)))
			c.sink.OnEvent(schemas.WarningEvent(c.cfg.CanaryURL, "stored session rejected, manual login required"))
		}
	} else {
		c.setState(StateNoSession)
	}

	if err := c.ManualLogin(ctx, page); err != nil {
		c.setState(StateFailed)
		return err
	}
	c.setState(StateAuthenticated)
	return nil
}

// tryRestore applies the artifact, hits the canary URL and classifies the
// result.
func (c *Controller) tryRestore(ctx context.Context, page schemas.Page, artifact *schemas.SessionArtifact) (schemas.AuthState, error) {
	if err := page.ApplySession(ctx, artifact); err != nil {
		return schemas.AuthUnknown, fmt.Errorf("failed to apply session artifact: %w", err)
	}
	if err := page.Navigate(ctx, c.cfg.CanaryURL); err != nil {
		return schemas.AuthUnknown, err
	}
	sig, err := page.Signals(ctx)
	if err != nil {
		return schemas.AuthUnknown, err
	}
	return Classify(sig, c.cfg), nil
}

// ManualLogin navigates to the login page and polls until the operator has
// signed in, then exports and persists the fresh session. It fails with
// *schemas.AuthenticationError when the login budget runs out, leaving any
// stored artifact untouched.
func (c *Controller) ManualLogin(ctx context.Context, page schemas.Page) error {
	c.setState(StateManualLogin)

	if err := page.Navigate(ctx, c.cfg.LoginURL); err != nil {
		return err
	}
	c.logger.Info("Waiting for manual login in the browser window.",
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Duration("budget", c.cfg.LoginTimeout))

	deadline := c.clock.Now().Add(c.cfg.LoginTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.cfg.PollInterval):
		}

		sig, err := page.Signals(ctx)
		if err != nil {
			return err
		}
		switch Classify(sig, c.cfg) {
		case schemas.AuthAuthenticated:
			return c.persistSession(ctx, page)
		case schemas.AuthRateLimited:
			// Throttling during login is not terminal; the operator may
			// still get through once it lifts.
			c.logger.Warn("Rate limiting observed while waiting for login.", zap.String("url", sig.URL))
			c.sink.OnEvent(schemas.WarningEvent(c.cfg.LoginURL, "rate limiting observed while waiting for login"))
		}

		remaining := deadline.Sub(c.clock.Now())
		if remaining < 0 {
			return &schemas.AuthenticationError{
				Reason: fmt.Sprintf("manual login not completed within %s", c.cfg.LoginTimeout),
			}
		}
		c.logger.Info("Still waiting for login.", zap.Duration("remaining", remaining))
	}
}

// persistSession exports the live session and saves it. A failed save is a
// warning, not a failure: the live session stays usable for this run.
func (c *Controller) persistSession(ctx context.Context, page schemas.Page) error {
	artifact, err := page.ExportSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to export session after login: %w", err)
	}
	if err := c.store.Save(artifact, c.cfg.SessionPath); err != nil {
		c.logger.Warn("Failed to persist session artifact; continuing with the live session.", zap.Error(err))
		c.sink.OnEvent(schemas.WarningEvent(c.cfg.LoginURL, "failed to persist session artifact"))
		return nil
	}
	c.logger.Info("Manual login completed and session persisted.", zap.String("path", c.cfg.SessionPath))
	return nil
}
