// Package extract wraps a Page's raw element reads with retries, per-attempt
// timeouts and safe defaults, so recipes never have to handle transient DOM
// flakiness themselves.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// Extractor implements schemas.Extractor over a single Page. Field reads
// absorb failures and fall back to the caller's default; required
// interactions surface *schemas.InteractionError after the budget runs out.
type Extractor struct {
	page   schemas.Page
	cfg    config.ExtractConfig
	sink   schemas.ProgressSink
	target string
	logger *zap.Logger
}

var _ schemas.Extractor = (*Extractor)(nil)

// New builds an extractor bound to page. target tags the warning events the
// extractor emits when an attempt fails.
func New(page schemas.Page, cfg config.ExtractConfig, sink schemas.ProgressSink, target string, logger *zap.Logger) (*Extractor, error) {
	if page == nil {
		return nil, fmt.Errorf("page must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Extractor{
		page:   page,
		cfg:    cfg,
		sink:   sink,
		target: target,
		logger: logger.Named("extract"),
	}, nil
}

// attempt runs op up to retries+1 times, each under its own timeout, with a
// cancellable delay between attempts. Every failed attempt produces one
// warning event naming the locator.
func (e *Extractor) attempt(ctx context.Context, loc schemas.Locator, op func(ctx context.Context) error) error {
	attempts := e.cfg.Retries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && e.cfg.RetryDelay > 0 {
			timer := time.NewTimer(e.cfg.RetryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		attemptCtx := ctx
		if e.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
			err := op(attemptCtx)
			cancel()
			lastErr = err
		} else {
			lastErr = op(attemptCtx)
		}
		if lastErr == nil {
			return nil
		}

		e.logger.Debug("Extraction attempt failed.",
			zap.String("locator", loc.Description),
			zap.String("selector", loc.Selector),
			zap.Int("attempt", i+1),
			zap.Error(lastErr))
		e.sink.OnEvent(schemas.WarningEvent(e.target,
			fmt.Sprintf("could not resolve %s (attempt %d/%d)", loc.Description, i+1, attempts)))
	}

	return lastErr
}

// Text reads the trimmed text of loc, or returns (def, false) once the
// retry budget is spent.
func (e *Extractor) Text(ctx context.Context, loc schemas.Locator, def string) (string, bool) {
	var value string
	err := e.attempt(ctx, loc, func(ctx context.Context) error {
		var err error
		value, err = e.page.Text(ctx, loc.Selector)
		return err
	})
	if err != nil {
		return def, false
	}
	return value, true
}

// Attribute reads the named attribute of loc, or returns (def, false) once
// the retry budget is spent.
func (e *Extractor) Attribute(ctx context.Context, loc schemas.Locator, attr, def string) (string, bool) {
	var value string
	err := e.attempt(ctx, loc, func(ctx context.Context) error {
		var err error
		value, err = e.page.Attribute(ctx, loc.Selector, attr)
		return err
	})
	if err != nil {
		return def, false
	}
	return value, true
}

// Click clicks loc. Unlike field reads there is no safe default, so an
// exhausted budget is an error.
func (e *Extractor) Click(ctx context.Context, loc schemas.Locator) error {
	err := e.attempt(ctx, loc, func(ctx context.Context) error {
		return e.page.Click(ctx, loc.Selector)
	})
	if err != nil {
		return &schemas.InteractionError{
			Locator:  loc.Description,
			Attempts: e.cfg.Retries + 1,
			Err:      err,
		}
	}
	return nil
}
