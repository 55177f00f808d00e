package schemas

import "context"

// Page is the capability surface a live browser tab exposes to the core.
// Implementations are not safe for concurrent callers; one Page drives one
// sequential scrape flow. All methods respect ctx cancellation.
type Page interface {
	// Navigate loads url and waits for the configured load condition.
	// Timeouts and load failures surface as *NavigationError.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	// Signals probes the page for the observations Classify needs.
	Signals(ctx context.Context) (PageSignals, error)
	// Text returns the trimmed text content of the first match, or
	// ErrElementNotFound when the selector matches nothing.
	Text(ctx context.Context, selector string) (string, error)
	// Attribute returns the named attribute of the first match.
	Attribute(ctx context.Context, selector, name string) (string, error)
	// Click scrolls the first match into view and clicks it.
	Click(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression and unmarshals the result
	// into out when out is non-nil.
	Evaluate(ctx context.Context, expression string, out any) error
	// ScrollToBottom scrolls the page to its full height, nudging lazy
	// listings into rendering.
	ScrollToBottom(ctx context.Context) error
	// Settle waits for the page to quiesce after an in-page interaction.
	Settle(ctx context.Context) error
	// ApplySession injects a stored artifact's cookies and storage.
	// It must be called before the first real navigation.
	ApplySession(ctx context.Context, artifact *SessionArtifact) error
	// ExportSession snapshots the live session into an artifact.
	ExportSession(ctx context.Context) (*SessionArtifact, error)
	// Close releases the tab. It is idempotent and must succeed even if
	// an earlier step already failed.
	Close(ctx context.Context) error
}

// Extractor is the retrying-and-defaulting read surface handed to
// recipes. Read methods never fail: after the retry budget is exhausted
// they report found=false and the caller keeps the default. Click has no
// safe default and returns *InteractionError instead.
type Extractor interface {
	Text(ctx context.Context, loc Locator, def string) (string, bool)
	Attribute(ctx context.Context, loc Locator, attr, def string) (string, bool)
	Click(ctx context.Context, loc Locator) error
}

// Recipe is the externally supplied, entity-specific extraction logic. A
// recipe reads fields from an already-authenticated, already-navigated
// page; it performs no authentication and no navigation-level retries of
// its own, those are core responsibilities.
type Recipe interface {
	Name() string
	Extract(ctx context.Context, page Page, x Extractor) (*Record, error)
}

// ProgressSink observes lifecycle and progress events. The core delivers
// events for one scrape call in order from a single goroutine;
// implementations may log, render, aggregate or drop them.
type ProgressSink interface {
	OnEvent(ev ProgressEvent)
}
