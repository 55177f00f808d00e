package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePage reports authed chrome everywhere except the URLs given special
// signals.
type fakePage struct {
	mu          sync.Mutex
	current     string
	navigations []string
	signalsFor  map[string]schemas.PageSignals
	closed      bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
	p.navigations = append(p.navigations, url)
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakePage) Signals(context.Context) (schemas.PageSignals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sig, ok := p.signalsFor[p.current]; ok {
		return sig, nil
	}
	return schemas.PageSignals{URL: p.current, HasAuthedChrome: true}, nil
}

func (p *fakePage) Text(context.Context, string) (string, error) { return "", nil }
func (p *fakePage) Attribute(context.Context, string, string) (string, error) {
	return "", nil
}
func (p *fakePage) Click(context.Context, string) error         { return nil }
func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }
func (p *fakePage) ScrollToBottom(context.Context) error        { return nil }
func (p *fakePage) Settle(context.Context) error                { return nil }
func (p *fakePage) ApplySession(context.Context, *schemas.SessionArtifact) error {
	return nil
}
func (p *fakePage) ExportSession(context.Context) (*schemas.SessionArtifact, error) {
	return &schemas.SessionArtifact{}, nil
}

func (p *fakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeFactory struct {
	mu         sync.Mutex
	signalsFor map[string]schemas.PageSignals
	pages      []*fakePage
}

func (f *fakeFactory) NewPage(context.Context) (schemas.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePage{signalsFor: f.signalsFor}
	f.pages = append(f.pages, p)
	return p, nil
}

type fakeAuth struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *fakeAuth) EnsureAuthenticated(context.Context, schemas.Page) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

// stubRecipe extracts a single constant field and fails on demand.
type stubRecipe struct {
	failFor map[string]error
}

func (r *stubRecipe) Name() string { return "job_details" }

func (r *stubRecipe) Extract(ctx context.Context, page schemas.Page, _ schemas.Extractor) (*schemas.Record, error) {
	url, _ := page.CurrentURL(ctx)
	if err, ok := r.failFor[url]; ok {
		return nil, err
	}
	rec := schemas.NewRecord("job", "job_title")
	rec.Set("job_title", "Engineer")
	return rec, nil
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

func testOrchConfig(concurrency int) *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			Patterns: config.AuthPatterns{
				LoginURLFragments:     []string{"/login", "/authwall"},
				RateLimitURLFragments: []string{"/429"},
			},
		},
		Extract: config.ExtractConfig{Retries: 0},
		Scrape:  config.ScrapeConfig{Concurrency: concurrency},
	}
}

func newOrchestrator(t *testing.T, factory PageFactory, authenticator Authenticator, cfg *config.Config, sink schemas.ProgressSink) *Orchestrator {
	t.Helper()
	o, err := New(factory, authenticator, cfg, sink, zap.NewNop())
	require.NoError(t, err)
	return o
}

const (
	targetA = "https://example.com/jobs/view/1/"
	targetB = "https://example.com/jobs/view/2/"
)

func TestScrapeAllDeduplicatesTargets(t *testing.T) {
	factory := &fakeFactory{}
	authn := &fakeAuth{}
	sink := &recordingSink{}
	o := newOrchestrator(t, factory, authn, testOrchConfig(1), sink)

	records, err := o.ScrapeAll(context.Background(),
		[]string{targetA, targetA + "?refId=abc", targetB},
		&stubRecipe{})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, targetA, records[0].Target)
	assert.Equal(t, targetB, records[1].Target)
	assert.False(t, records[0].ScrapedAt.IsZero())

	assert.Equal(t, 1, authn.calls, "one session for the whole run")
	require.Len(t, factory.pages, 1)
	assert.True(t, factory.pages[0].closed)
	assert.Equal(t, []string{targetA, targetB}, factory.pages[0].navigations)

	started := sink.byKind(schemas.EventStarted)
	assert.Len(t, started, 2)

	completed := sink.byKind(schemas.EventCompleted)
	require.Len(t, completed, 3, "one per target plus the run summary")
	assert.Equal(t, 2, completed[2].Count)
}

func TestScrapeAllAbortsOnRateLimit(t *testing.T) {
	rateLimited := "https://example.com/jobs/view/9/"
	factory := &fakeFactory{signalsFor: map[string]schemas.PageSignals{
		rateLimited: {URL: rateLimited, HasRateLimitBanner: true},
	}}
	sink := &recordingSink{}
	o := newOrchestrator(t, factory, &fakeAuth{}, testOrchConfig(1), sink)

	records, err := o.ScrapeAll(context.Background(),
		[]string{targetA, rateLimited, targetB}, &stubRecipe{})

	var rl *schemas.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Len(t, records, 1, "only the target before the throttle")

	failed := sink.byKind(schemas.EventFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "rate_limited", failed[0].ErrorKind)

	// The throttled target must not be extracted and the run must stop.
	require.Len(t, factory.pages, 1)
	assert.Equal(t, []string{targetA, rateLimited}, factory.pages[0].navigations)
}

func TestScrapeAllSkipsFailedTargets(t *testing.T) {
	factory := &fakeFactory{}
	sink := &recordingSink{}
	o := newOrchestrator(t, factory, &fakeAuth{}, testOrchConfig(1), sink)

	records, err := o.ScrapeAll(context.Background(),
		[]string{targetA, targetB},
		&stubRecipe{failFor: map[string]error{targetA: errors.New("layout changed")}})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, targetB, records[0].Target)

	failed := sink.byKind(schemas.EventFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "scraping", failed[0].ErrorKind)
}

func TestScrapeFailsWhenSessionExpiresMidRun(t *testing.T) {
	expired := "https://example.com/jobs/view/3/"
	factory := &fakeFactory{signalsFor: map[string]schemas.PageSignals{
		expired: {URL: expired, HasLoginForm: true},
	}}
	sink := &recordingSink{}
	o := newOrchestrator(t, factory, &fakeAuth{}, testOrchConfig(1), sink)

	records, err := o.ScrapeAll(context.Background(), []string{expired, targetA}, &stubRecipe{})
	require.NoError(t, err, "an expired session skips the target, not the run")
	assert.Len(t, records, 1)

	failed := sink.byKind(schemas.EventFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "authentication", failed[0].ErrorKind)
}

func TestScrapeAllAuthFailureStopsRun(t *testing.T) {
	factory := &fakeFactory{}
	authn := &fakeAuth{err: &schemas.AuthenticationError{Reason: "manual login not completed"}}
	o := newOrchestrator(t, factory, authn, testOrchConfig(1), &recordingSink{})

	_, err := o.ScrapeAll(context.Background(), []string{targetA}, &stubRecipe{})

	var authErr *schemas.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestScrapeAllConcurrent(t *testing.T) {
	factory := &fakeFactory{}
	authn := &fakeAuth{}
	sink := &recordingSink{}
	o := newOrchestrator(t, factory, authn, testOrchConfig(3), sink)

	targets := []string{
		"https://example.com/jobs/view/1/",
		"https://example.com/jobs/view/2/",
		"https://example.com/jobs/view/3/",
		"https://example.com/jobs/view/4/",
	}
	records, err := o.ScrapeAll(context.Background(), targets, &stubRecipe{})
	require.NoError(t, err)

	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, targets[i], rec.Target, "results keep target order")
	}

	// Warmup tab plus one per target, all closed.
	require.Len(t, factory.pages, 5)
	for _, p := range factory.pages {
		assert.True(t, p.closed)
	}
	assert.Equal(t, 5, authn.calls)
}

func TestNewRejectsNilDependencies(t *testing.T) {
	cfg := testOrchConfig(1)
	sink := &recordingSink{}
	factory := &fakeFactory{}
	authn := &fakeAuth{}
	logger := zap.NewNop()

	_, err := New(nil, authn, cfg, sink, logger)
	assert.Error(t, err)
	_, err = New(factory, nil, cfg, sink, logger)
	assert.Error(t, err)
	_, err = New(factory, authn, nil, sink, logger)
	assert.Error(t, err)
	_, err = New(factory, authn, cfg, nil, logger)
	assert.Error(t, err)
	_, err = New(factory, authn, cfg, sink, nil)
	assert.Error(t, err)
}
