package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is one browser tab. It implements schemas.Page. A Session is
// driven by one goroutine at a time; Close is the only method safe to call
// concurrently.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	probes config.AuthSelectors
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	onClose func()

	// pendingStorage holds an applied artifact's web storage until the
	// first navigation establishes an origin to write it under.
	pendingStorage *schemas.SessionArtifact
}

var _ schemas.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, probes config.AuthSelectors, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		probes: probes,
		logger: logger.Named("session").With(zap.String("session_id", id)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against this tab under the caller's
// deadline. The tab context carries the CDP target, ctx the cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads targetURL and waits for the document body. Load failures
// and timeouts surface as *schemas.NavigationError.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}

	err := s.run(navCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return &schemas.NavigationError{URL: targetURL, Err: err}
	}
	s.logger.Debug("Navigated.", zap.String("url", targetURL))

	if err := s.flushPendingStorage(ctx); err != nil {
		return err
	}
	return s.Settle(ctx)
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Signals probes the page in a single evaluation so the observations are
// consistent with each other.
func (s *Session) Signals(ctx context.Context) (schemas.PageSignals, error) {
	script := fmt.Sprintf(`(() => {
		const probe = (sel) => { try { return !!document.querySelector(sel); } catch (e) { return false; } };
		return {
			url: location.href,
			login_form: probe(%q),
			rate_limit: probe(%q),
			authed: probe(%q),
		};
	})()`, s.probes.LoginForm, s.probes.RateLimitBanner, s.probes.AuthedChrome)

	var sig schemas.PageSignals
	if err := s.Evaluate(ctx, script, &sig); err != nil {
		return schemas.PageSignals{}, fmt.Errorf("failed to probe page signals: %w", err)
	}
	return sig, nil
}

// nodeExists reports whether selector matches at least one node right now,
// without waiting for one to appear.
func (s *Session) nodeExists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Text returns the trimmed text content of the first match, or
// schemas.ErrElementNotFound when the selector matches nothing.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	exists, err := s.nodeExists(ctx, selector)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", schemas.ErrElementNotFound
	}
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Attribute returns the named attribute of the first match.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, error) {
	exists, err := s.nodeExists(ctx, selector)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", schemas.ErrElementNotFound
	}
	var (
		value string
		ok    bool
	)
	if err := s.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if !ok {
		return "", schemas.ErrElementNotFound
	}
	return value, nil
}

// Click scrolls the first match into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	exists, err := s.nodeExists(ctx, selector)
	if err != nil {
		return err
	}
	if !exists {
		return schemas.ErrElementNotFound
	}
	return s.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Evaluate runs a JavaScript expression in the page. The result is
// unmarshaled into out when out is non-nil.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expression, out))
}

// ScrollToBottom scrolls to the document's full height so lazily rendered
// listings populate.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.Evaluate(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil)
}

// Settle waits the configured post-load period, honoring cancellation. DOM
// mutation quiet-periods proved flakier than a fixed wait against heavily
// scripted pages.
func (s *Session) Settle(ctx context.Context) error {
	if s.cfg.PostLoadWait <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.PostLoadWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// ApplySession injects the artifact's cookies now and holds its web storage
// until the first navigation provides an origin to write under.
func (s *Session) ApplySession(ctx context.Context, artifact *schemas.SessionArtifact) error {
	if artifact == nil {
		return fmt.Errorf("artifact must not be nil")
	}
	if len(artifact.Cookies) > 0 {
		err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(artifact.Cookies).Do(ctx)
		}))
		if err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}
	if len(artifact.LocalStorage) > 0 || len(artifact.SessionStorage) > 0 {
		s.pendingStorage = artifact
	}
	s.logger.Debug("Applied session artifact.",
		zap.Int("cookies", len(artifact.Cookies)),
		zap.Time("created_at", artifact.CreatedAt))
	return nil
}

func (s *Session) flushPendingStorage(ctx context.Context) error {
	artifact := s.pendingStorage
	if artifact == nil {
		return nil
	}
	s.pendingStorage = nil

	if err := s.writeStorage(ctx, "localStorage", artifact.LocalStorage); err != nil {
		return err
	}
	return s.writeStorage(ctx, "sessionStorage", artifact.SessionStorage)
}

func (s *Session) writeStorage(ctx context.Context, store string, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", store, err)
	}
	script := fmt.Sprintf(`(items => {
		for (const [k, v] of Object.entries(items)) window.%s.setItem(k, v);
	})(%s)`, store, payload)
	if err := s.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("failed to restore %s: %w", store, err)
	}
	return nil
}

// ExportSession snapshots the live cookies and web storage into an
// artifact suitable for persistence.
func (s *Session) ExportSession(ctx context.Context) (*schemas.SessionArtifact, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	artifact := &schemas.SessionArtifact{
		CreatedAt:      time.Now().UTC(),
		Cookies:        make([]*network.CookieParam, 0, len(cookies)),
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
	}
	for _, c := range cookies {
		artifact.Cookies = append(artifact.Cookies, cookieToParam(c))
	}

	if err := s.Evaluate(ctx, `Object.fromEntries(Object.entries(window.localStorage))`, &artifact.LocalStorage); err != nil {
		return nil, fmt.Errorf("failed to read localStorage: %w", err)
	}
	if err := s.Evaluate(ctx, `Object.fromEntries(Object.entries(window.sessionStorage))`, &artifact.SessionStorage); err != nil {
		return nil, fmt.Errorf("failed to read sessionStorage: %w", err)
	}

	s.logger.Debug("Exported session artifact.", zap.Int("cookies", len(artifact.Cookies)))
	return artifact, nil
}

// cookieToParam converts a live cookie into the settable form, preserving
// the expiry so restored sessions do not degrade to session cookies.
func cookieToParam(c *network.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
	if c.Expires > 0 {
		expires := cdp.TimeSinceEpoch(time.Unix(0, int64(c.Expires*float64(time.Second))))
		p.Expires = &expires
	}
	return p
}

// SetOnClose registers a callback invoked exactly once when the session
// closes.
func (s *Session) SetOnClose(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = callback
}

// Close releases the tab. It is idempotent and succeeds even when the
// owning context is already canceled.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.cancel()
	if onClose != nil {
		onClose()
	}
	s.logger.Debug("Session closed.")
	return nil
}
