// Package collect walks a paginated listing and accumulates a deduplicated,
// ordered set of item URLs.
package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// Source is one paginated listing. Items returns the item URLs visible on
// the current page; HasNext reports whether another page is reachable;
// Advance moves to it and waits for it to render.
type Source interface {
	Items(ctx context.Context) ([]string, error)
	HasNext(ctx context.Context) (bool, error)
	Advance(ctx context.Context) error
}

// ItemSet is an ordered set of canonical URLs. Iteration order is first
// insertion order, so output is stable across re-runs of the same listing.
type ItemSet struct {
	seen  map[string]struct{}
	order []string
}

// NewItemSet returns an empty set.
func NewItemSet() *ItemSet {
	return &ItemSet{seen: make(map[string]struct{})}
}

// Add inserts the URL and reports whether it was new.
func (s *ItemSet) Add(url string) bool {
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.order = append(s.order, url)
	return true
}

// Keys returns the URLs in insertion order.
func (s *ItemSet) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of distinct URLs collected.
func (s *ItemSet) Len() int { return len(s.order) }

// CanonicalURL strips the query string and fragment so the same item linked
// with different tracking parameters dedupes to one entry. Unparseable URLs
// pass through unchanged.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "?")
}

// Collector drives a Source page by page.
type Collector struct {
	cfg    config.CollectConfig
	sink   schemas.ProgressSink
	logger *zap.Logger
}

// NewCollector wires a collector.
func NewCollector(cfg config.CollectConfig, sink schemas.ProgressSink, logger *zap.Logger) (*Collector, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Collector{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("collect"),
	}, nil
}

// Collect walks src until pagination is exhausted, the page cap is hit, or
// a page contributes nothing new twice in a row. target tags the progress
// events. The returned slice is in first-seen order.
func (c *Collector) Collect(ctx context.Context, src Source, target string) ([]string, error) {
	if src == nil {
		return nil, fmt.Errorf("source must not be nil")
	}

	set := NewItemSet()
	page := 1
	retriedStalePage := false

	for {
		if err := ctx.Err(); err != nil {
			return set.Keys(), err
		}

		items, err := src.Items(ctx)
		if err != nil {
			return set.Keys(), fmt.Errorf("failed to read items on page %d: %w", page, err)
		}

		added := 0
		for _, raw := range items {
			if set.Add(CanonicalURL(raw)) {
				added++
				c.sink.OnEvent(schemas.ItemFoundEvent(target, set.Len()))
			}
		}
		c.logger.Debug("Scanned listing page.",
			zap.Int("page", page),
			zap.Int("new_items", added),
			zap.Int("total", set.Len()))

		// A page with nothing new usually means the listing re-rendered
		// under us. Give it one settle-and-retry before giving up.
		if added == 0 && page > 1 {
			if retriedStalePage {
				c.logger.Debug("No new items after retry; stopping.", zap.Int("page", page))
				break
			}
			retriedStalePage = true
			if err := c.wait(ctx); err != nil {
				return set.Keys(), err
			}
			continue
		}
		retriedStalePage = false

		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			c.logger.Warn("Page cap reached; stopping collection.",
				zap.Int("max_pages", c.cfg.MaxPages))
			break
		}

		hasNext, err := src.HasNext(ctx)
		if err != nil {
			return set.Keys(), fmt.Errorf("failed to probe pagination on page %d: %w", page, err)
		}
		if !hasNext {
			break
		}
		if err := src.Advance(ctx); err != nil {
			return set.Keys(), fmt.Errorf("failed to advance past page %d: %w", page, err)
		}
		page++
		c.sink.OnEvent(schemas.PageAdvancedEvent(target, page))
	}

	c.sink.OnEvent(schemas.CompletedEvent(target, set.Len()))
	c.logger.Info("Collection finished.",
		zap.Int("pages", page),
		zap.Int("items", set.Len()))
	return set.Keys(), nil
}

func (c *Collector) wait(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
