package collect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// fakeSource serves a fixed slice of pages.
type fakeSource struct {
	pages      [][]string
	current    int
	advanceErr error
	itemsErr   error
	advances   int
}

func (s *fakeSource) Items(context.Context) ([]string, error) {
	if s.itemsErr != nil {
		return nil, s.itemsErr
	}
	if s.current >= len(s.pages) {
		return nil, nil
	}
	return s.pages[s.current], nil
}

func (s *fakeSource) HasNext(context.Context) (bool, error) {
	return s.current < len(s.pages)-1, nil
}

func (s *fakeSource) Advance(context.Context) error {
	if s.advanceErr != nil {
		return s.advanceErr
	}
	s.advances++
	s.current++
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []schemas.ProgressEvent
}

func (r *recordingSink) OnEvent(ev schemas.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) byKind(kind schemas.EventKind) []schemas.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schemas.ProgressEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

const listing = "https://example.com/my-items/saved-jobs/"

func newCollector(t *testing.T, cfg config.CollectConfig, sink schemas.ProgressSink) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, sink, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://example.com/jobs/view/123/?refId=abc&tracking=xyz", "https://example.com/jobs/view/123/"},
		{"https://example.com/jobs/view/123/#top", "https://example.com/jobs/view/123/"},
		{"https://example.com/jobs/view/123/", "https://example.com/jobs/view/123/"},
		{"://not-a-url", "://not-a-url"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalURL(tc.in), tc.in)
	}
}

func TestItemSetOrderAndDedupe(t *testing.T) {
	set := NewItemSet()

	assert.True(t, set.Add("a"))
	assert.True(t, set.Add("b"))
	assert.False(t, set.Add("a"))
	assert.True(t, set.Add("c"))

	assert.Equal(t, []string{"a", "b", "c"}, set.Keys())
	assert.Equal(t, 3, set.Len())
}

func TestCollectWalksAllPages(t *testing.T) {
	src := &fakeSource{pages: [][]string{
		{"https://example.com/jobs/view/1/?ref=a", "https://example.com/jobs/view/2/"},
		{"https://example.com/jobs/view/2/?ref=b", "https://example.com/jobs/view/3/"},
		{"https://example.com/jobs/view/4/"},
	}}
	sink := &recordingSink{}
	c := newCollector(t, config.CollectConfig{MaxPages: 10}, sink)

	urls, err := c.Collect(context.Background(), src, listing)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/jobs/view/1/",
		"https://example.com/jobs/view/2/",
		"https://example.com/jobs/view/3/",
		"https://example.com/jobs/view/4/",
	}, urls, "cross-page duplicates collapse, order is first-seen")

	assert.Len(t, sink.byKind(schemas.EventItemFound), 4)
	assert.Len(t, sink.byKind(schemas.EventPageAdvanced), 2)

	completed := sink.byKind(schemas.EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 4, completed[0].Count)
}

func TestCollectStopsAtPageCap(t *testing.T) {
	src := &fakeSource{pages: [][]string{
		{"https://example.com/jobs/view/1/"},
		{"https://example.com/jobs/view/2/"},
		{"https://example.com/jobs/view/3/"},
	}}
	c := newCollector(t, config.CollectConfig{MaxPages: 2}, &recordingSink{})

	urls, err := c.Collect(context.Background(), src, listing)
	require.NoError(t, err)

	assert.Len(t, urls, 2)
	assert.Equal(t, 1, src.advances)
}

func TestCollectRetriesAStalePageOnce(t *testing.T) {
	// Page 2 repeats page 1 exactly; after one settle-and-retry with the
	// same content, collection halts instead of looping.
	src := &fakeSource{pages: [][]string{
		{"https://example.com/jobs/view/1/"},
		{"https://example.com/jobs/view/1/"},
		{"https://example.com/jobs/view/9/"},
	}}
	c := newCollector(t, config.CollectConfig{MaxPages: 10, SettleDelay: time.Millisecond}, &recordingSink{})

	urls, err := c.Collect(context.Background(), src, listing)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/jobs/view/1/"}, urls)
}

func TestCollectSinglePageListing(t *testing.T) {
	src := &fakeSource{pages: [][]string{{"https://example.com/jobs/view/1/"}}}
	c := newCollector(t, config.CollectConfig{MaxPages: 10}, &recordingSink{})

	urls, err := c.Collect(context.Background(), src, listing)
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Equal(t, 0, src.advances)
}

func TestCollectEmptyListing(t *testing.T) {
	src := &fakeSource{pages: [][]string{{}}}
	sink := &recordingSink{}
	c := newCollector(t, config.CollectConfig{MaxPages: 10}, sink)

	urls, err := c.Collect(context.Background(), src, listing)
	require.NoError(t, err)
	assert.Empty(t, urls)

	completed := sink.byKind(schemas.EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 0, completed[0].Count)
}

func TestCollectSurfacesSourceErrors(t *testing.T) {
	t.Run("items failure", func(t *testing.T) {
		src := &fakeSource{itemsErr: errors.New("evaluation failed")}
		c := newCollector(t, config.CollectConfig{}, &recordingSink{})

		_, err := c.Collect(context.Background(), src, listing)
		assert.ErrorContains(t, err, "evaluation failed")
	})

	t.Run("advance failure keeps items collected so far", func(t *testing.T) {
		src := &fakeSource{
			pages:      [][]string{{"https://example.com/jobs/view/1/"}, {"https://example.com/jobs/view/2/"}},
			advanceErr: errors.New("click failed"),
		}
		c := newCollector(t, config.CollectConfig{MaxPages: 10}, &recordingSink{})

		urls, err := c.Collect(context.Background(), src, listing)
		require.Error(t, err)
		assert.Equal(t, []string{"https://example.com/jobs/view/1/"}, urls)
	})
}

func TestCollectHonorsCancellation(t *testing.T) {
	src := &fakeSource{pages: [][]string{{"https://example.com/jobs/view/1/"}}}
	c := newCollector(t, config.CollectConfig{}, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Collect(ctx, src, listing)
	assert.ErrorIs(t, err, context.Canceled)
}
