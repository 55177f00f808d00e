// Package schemas holds the shared data model of the harvester core: the
// session artifact, page classification signals, progress events, scraped
// records and the typed error taxonomy. Internal packages depend on this
// package only, never on each other's concrete types.
package schemas

import (
	"time"

	"github.com/chromedp/cdproto/network"
)

// AuthState classifies the authentication posture of the current page.
// It is derived per navigation from PageSignals and never persisted.
type AuthState string

const (
	// AuthUnknown means the page signals were insufficient to decide.
	// Callers must never coerce Unknown to Authenticated.
	AuthUnknown AuthState = "unknown"
	// AuthUnauthenticated means a login wall or login form is present.
	AuthUnauthenticated AuthState = "unauthenticated"
	// AuthAuthenticated means the logged-in application chrome is present.
	AuthAuthenticated AuthState = "authenticated"
	// AuthRateLimited means the remote side signaled throttling.
	AuthRateLimited AuthState = "rate_limited"
)

// PageSignals are the raw observations Classify operates on. They are
// gathered in a single page probe so classification stays a pure function.
type PageSignals struct {
	URL                string `json:"url"`
	HasLoginForm       bool   `json:"login_form"`
	HasRateLimitBanner bool   `json:"rate_limit"`
	HasAuthedChrome    bool   `json:"authed"`
}

// SessionArtifact is the serialized authentication state of a browser
// session: cookie set, web storage snapshot and creation timestamp. It is
// written atomically by the session store; staleness is only detectable at
// use time, when the remote side rejects it.
type SessionArtifact struct {
	CreatedAt      time.Time              `json:"created_at"`
	Cookies        []*network.CookieParam `json:"cookies"`
	LocalStorage   map[string]string      `json:"local_storage"`
	SessionStorage map[string]string      `json:"session_storage"`
}

// Locator describes a DOM target for extraction. Description is the
// human-readable name that shows up in warning events, so drifting
// selectors can be audited after a run.
type Locator struct {
	Selector    string `json:"selector"`
	Description string `json:"description"`
}

// Record is one scraped entity. Fields a recipe knows about but could not
// extract are present with a nil value, which marshals to an explicit JSON
// null; downstream consumers can therefore distinguish "missing from the
// page" from "not part of this recipe".
type Record struct {
	Target    string             `json:"target"`
	Kind      string             `json:"kind"`
	ScrapedAt time.Time          `json:"scraped_at"`
	Fields    map[string]*string `json:"fields"`
}

// NewRecord returns a Record of the given kind with every named field
// initialized to nil.
func NewRecord(kind string, fieldNames ...string) *Record {
	fields := make(map[string]*string, len(fieldNames))
	for _, name := range fieldNames {
		fields[name] = nil
	}
	return &Record{Kind: kind, Fields: fields}
}

// Set stores a concrete value for a field.
func (r *Record) Set(name, value string) {
	r.Fields[name] = &value
}

// SetOptional stores the value when ok is true and leaves the explicit
// null in place otherwise. It pairs with the (value, found) shape of the
// resilient extractor.
func (r *Record) SetOptional(name, value string, ok bool) {
	if ok {
		r.Set(name, value)
	}
}

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventStarted      EventKind = "started"
	EventItemFound    EventKind = "item_found"
	EventPageAdvanced EventKind = "page_advanced"
	EventWarning      EventKind = "warning"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"
)

// ProgressEvent is an immutable lifecycle notification. Events are
// delivered to registered sinks in the order the underlying operations
// complete, single-goroutine per scrape call.
type ProgressEvent struct {
	Kind      EventKind `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Count     int       `json:"count,omitempty"`
	Page      int       `json:"page,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}

// StartedEvent marks the beginning of a scrape of target.
func StartedEvent(target string) ProgressEvent {
	return ProgressEvent{Kind: EventStarted, Target: target, At: time.Now()}
}

// ItemFoundEvent reports the running item count during collection.
func ItemFoundEvent(target string, count int) ProgressEvent {
	return ProgressEvent{Kind: EventItemFound, Target: target, Count: count, At: time.Now()}
}

// PageAdvancedEvent reports a successful pagination step.
func PageAdvancedEvent(target string, page int) ProgressEvent {
	return ProgressEvent{Kind: EventPageAdvanced, Target: target, Page: page, At: time.Now()}
}

// WarningEvent reports a recoverable problem, typically a locator that
// failed to resolve within one attempt.
func WarningEvent(target, message string) ProgressEvent {
	return ProgressEvent{Kind: EventWarning, Target: target, Message: message, At: time.Now()}
}

// CompletedEvent reports the total number of records or items produced.
func CompletedEvent(target string, total int) ProgressEvent {
	return ProgressEvent{Kind: EventCompleted, Target: target, Count: total, At: time.Now()}
}

// FailedEvent reports a terminal failure, tagged with the error taxonomy
// kind so sinks can aggregate failures without parsing messages.
func FailedEvent(target string, err error) ProgressEvent {
	return ProgressEvent{
		Kind:      EventFailed,
		Target:    target,
		Message:   errMessage(err),
		ErrorKind: ErrorKind(err),
		At:        time.Now(),
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
