package recipe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/collect"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

var (
	locNextPage = schemas.Locator{
		Selector:    `button[aria-label="View next page"], button.artdeco-pagination__button--next`,
		Description: "next page button",
	}
	locDismissModal = schemas.Locator{
		Selector:    `button[aria-label="Dismiss"], button.artdeco-modal__dismiss`,
		Description: "modal dismiss button",
	}
)

// SavedJobsSource exposes the saved-jobs listing as a paginated source of
// job URLs.
type SavedJobsSource struct {
	page   schemas.Page
	x      schemas.Extractor
	cfg    config.CollectConfig
	logger *zap.Logger
}

var _ collect.Source = (*SavedJobsSource)(nil)

// NewSavedJobsSource binds the listing on page. The extractor handles the
// pagination click; raw reads go through the page directly.
func NewSavedJobsSource(page schemas.Page, x schemas.Extractor, cfg config.CollectConfig, logger *zap.Logger) (*SavedJobsSource, error) {
	if page == nil {
		return nil, fmt.Errorf("page must not be nil")
	}
	if x == nil {
		return nil, fmt.Errorf("extractor must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SavedJobsSource{
		page:   page,
		x:      x,
		cfg:    cfg,
		logger: logger.Named("savedjobs"),
	}, nil
}

// DismissOverlays closes any modal sitting over the listing. Best effort: a
// missing dismiss button just means there was nothing to dismiss.
func (s *SavedJobsSource) DismissOverlays(ctx context.Context) {
	if err := s.page.Click(ctx, locDismissModal.Selector); err != nil {
		return
	}
	s.logger.Debug("Dismissed a modal overlay.")
}

// Items scrolls the page out and returns every job link on it. Duplicates
// and tracking parameters are the collector's problem.
func (s *SavedJobsSource) Items(ctx context.Context) ([]string, error) {
	if err := s.page.ScrollToBottom(ctx); err != nil {
		return nil, err
	}
	if err := s.page.Settle(ctx); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll('a[href]')).map(a => a.href).filter(h => h.includes(%q))`,
		s.cfg.ItemPattern)

	var hrefs []string
	if err := s.page.Evaluate(ctx, script, &hrefs); err != nil {
		return nil, fmt.Errorf("failed to collect job links: %w", err)
	}
	return hrefs, nil
}

// HasNext reports whether the pagination control is present and enabled.
func (s *SavedJobsSource) HasNext(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(
		`(() => { const b = document.querySelector(%q); return !!b && !b.disabled; })()`,
		locNextPage.Selector)

	var enabled bool
	if err := s.page.Evaluate(ctx, script, &enabled); err != nil {
		return false, fmt.Errorf("failed to probe pagination control: %w", err)
	}
	return enabled, nil
}

// Advance clicks through to the next page and waits for it to render. The
// click goes through the extractor so a mid-render miss is retried.
func (s *SavedJobsSource) Advance(ctx context.Context) error {
	s.DismissOverlays(ctx)
	if err := s.x.Click(ctx, locNextPage); err != nil {
		return err
	}
	return s.page.Settle(ctx)
}
