// Package orchestrator runs end-to-end scrapes: authenticate once, then
// visit each target, verify the session still holds, and hand the page to
// the recipe under a resilient extractor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/auth"
	"github.com/kestrelmoor/harvester-cli/internal/collect"
	"github.com/kestrelmoor/harvester-cli/internal/config"
	"github.com/kestrelmoor/harvester-cli/internal/extract"
)

// PageFactory opens fresh browser tabs.
type PageFactory interface {
	NewPage(ctx context.Context) (schemas.Page, error)
}

// Authenticator leaves a page authenticated or fails.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, page schemas.Page) error
}

// Orchestrator coordinates a scrape run.
type Orchestrator struct {
	factory PageFactory
	auth    Authenticator
	cfg     *config.Config
	sink    schemas.ProgressSink
	logger  *zap.Logger
}

// New wires an orchestrator. All dependencies are required.
func New(factory PageFactory, authenticator Authenticator, cfg *config.Config, sink schemas.ProgressSink, logger *zap.Logger) (*Orchestrator, error) {
	if factory == nil {
		return nil, fmt.Errorf("page factory must not be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator must not be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Orchestrator{
		factory: factory,
		auth:    authenticator,
		cfg:     cfg,
		sink:    sink,
		logger:  logger.Named("orchestrator"),
	}, nil
}

// Scrape visits one target on an already-authenticated page and runs the
// recipe against it. Rate limiting fails fast, before any extraction, so a
// throttled run stops burning requests.
func (o *Orchestrator) Scrape(ctx context.Context, page schemas.Page, target string, recipe schemas.Recipe) (*schemas.Record, error) {
	o.sink.OnEvent(schemas.StartedEvent(target))

	record, err := o.scrape(ctx, page, target, recipe)
	if err != nil {
		o.sink.OnEvent(schemas.FailedEvent(target, err))
		return nil, err
	}

	o.sink.OnEvent(schemas.CompletedEvent(target, 1))
	return record, nil
}

func (o *Orchestrator) scrape(ctx context.Context, page schemas.Page, target string, recipe schemas.Recipe) (*schemas.Record, error) {
	if err := page.Navigate(ctx, target); err != nil {
		return nil, err
	}

	sig, err := page.Signals(ctx)
	if err != nil {
		return nil, err
	}
	switch auth.Classify(sig, o.cfg.Auth) {
	case schemas.AuthRateLimited:
		return nil, &schemas.RateLimitError{URL: sig.URL}
	case schemas.AuthUnauthenticated:
		return nil, &schemas.AuthenticationError{Reason: fmt.Sprintf("session expired at %s", target)}
	}

	extractor, err := extract.New(page, o.cfg.Extract, o.sink, target, o.logger)
	if err != nil {
		return nil, err
	}

	record, err := recipe.Extract(ctx, page, extractor)
	if err != nil {
		return nil, &schemas.ScrapingError{Target: target, Err: err}
	}
	if record == nil {
		return nil, &schemas.ScrapingError{Target: target, Err: fmt.Errorf("recipe %s produced no record", recipe.Name())}
	}

	record.Target = target
	record.ScrapedAt = time.Now().UTC()
	return record, nil
}

// ScrapeAll scrapes every distinct target. Targets are canonicalized and
// deduplicated first; per-target failures are reported and skipped, but a
// rate-limit signal aborts the whole run. Results keep target order.
func (o *Orchestrator) ScrapeAll(ctx context.Context, targets []string, recipe schemas.Recipe) ([]*schemas.Record, error) {
	set := collect.NewItemSet()
	for _, t := range targets {
		set.Add(collect.CanonicalURL(t))
	}
	distinct := set.Keys()

	runID := uuid.NewString()
	o.logger.Info("Starting scrape run.",
		zap.String("run_id", runID),
		zap.Int("targets", len(targets)),
		zap.Int("distinct", len(distinct)),
		zap.Int("concurrency", o.cfg.Scrape.Concurrency))

	var (
		records []*schemas.Record
		err     error
	)
	if o.cfg.Scrape.Concurrency > 1 {
		records, err = o.scrapeConcurrent(ctx, distinct, recipe)
	} else {
		records, err = o.scrapeSequential(ctx, distinct, recipe)
	}
	if err != nil {
		return records, err
	}

	o.sink.OnEvent(schemas.CompletedEvent("", len(records)))
	o.logger.Info("Scrape run finished.",
		zap.String("run_id", runID),
		zap.Int("records", len(records)),
		zap.Int("failed", len(distinct)-len(records)))
	return records, nil
}

// scrapeSequential drives every target through one tab, pacing visits with
// a rate limiter so the remote side sees a human-ish cadence.
func (o *Orchestrator) scrapeSequential(ctx context.Context, targets []string, recipe schemas.Recipe) ([]*schemas.Record, error) {
	page, err := o.factory.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close(context.WithoutCancel(ctx))

	if err := o.auth.EnsureAuthenticated(ctx, page); err != nil {
		return nil, err
	}

	limiter := o.newLimiter()
	records := make([]*schemas.Record, 0, len(targets))
	for _, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			return records, err
		}

		record, err := o.Scrape(ctx, page, target, recipe)
		if err != nil {
			if isFatal(err) {
				return records, err
			}
			o.logger.Warn("Target failed; continuing.",
				zap.String("target", target),
				zap.String("error_kind", schemas.ErrorKind(err)),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// scrapeConcurrent runs an isolated tab per worker. The first page
// authenticates interactively if needed and persists the artifact; workers
// then restore from it.
func (o *Orchestrator) scrapeConcurrent(ctx context.Context, targets []string, recipe schemas.Recipe) ([]*schemas.Record, error) {
	// Establish the session once before fanning out, so at most one manual
	// login happens per run.
	warmup, err := o.factory.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.auth.EnsureAuthenticated(ctx, warmup); err != nil {
		warmup.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := warmup.Close(ctx); err != nil {
		o.logger.Warn("Failed to close warmup tab.", zap.Error(err))
	}

	limiter := o.newLimiter()
	results := make([]*schemas.Record, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Scrape.Concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			page, err := o.factory.NewPage(gctx)
			if err != nil {
				return err
			}
			defer page.Close(context.WithoutCancel(gctx))

			if err := o.auth.EnsureAuthenticated(gctx, page); err != nil {
				return err
			}

			record, err := o.Scrape(gctx, page, target, recipe)
			if err != nil {
				if isFatal(err) {
					return err
				}
				o.logger.Warn("Target failed; continuing.",
					zap.String("target", target),
					zap.String("error_kind", schemas.ErrorKind(err)),
					zap.Error(err))
				return nil
			}
			results[i] = record
			return nil
		})
	}

	err = g.Wait()
	records := make([]*schemas.Record, 0, len(targets))
	for _, r := range results {
		if r != nil {
			records = append(records, r)
		}
	}
	return records, err
}

func (o *Orchestrator) newLimiter() *rate.Limiter {
	delay := o.cfg.Scrape.TargetDelay
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// isFatal reports whether an error should abort the whole run rather than
// just the current target.
func isFatal(err error) bool {
	var rateLimited *schemas.RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
