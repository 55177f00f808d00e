// Package progress provides ProgressSink implementations: a zap-backed
// sink, a human-oriented console sink, a fan-out and a nop.
package progress

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
)

// Nop discards all events.
type Nop struct{}

func (Nop) OnEvent(schemas.ProgressEvent) {}

// Multi fans events out to every registered sink in registration order.
// Registration and delivery are safe for concurrent use; delivery to the
// sinks of one event completes before the next event starts.
type Multi struct {
	mu    sync.Mutex
	sinks []schemas.ProgressSink
}

// NewMulti returns a fan-out over the given sinks. Nil sinks are skipped.
func NewMulti(sinks ...schemas.ProgressSink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Register(s)
	}
	return m
}

// Register appends a sink. Events observed before registration are not
// replayed.
func (m *Multi) Register(sink schemas.ProgressSink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

func (m *Multi) OnEvent(ev schemas.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sinks {
		s.OnEvent(ev)
	}
}

// LogSink writes events to a zap logger, mapping warnings and failures to
// the matching log levels.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging under the "progress" component.
func NewLogSink(logger *zap.Logger) (*LogSink, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &LogSink{logger: logger.Named("progress")}, nil
}

func (l *LogSink) OnEvent(ev schemas.ProgressEvent) {
	fields := []zap.Field{zap.String("target", ev.Target)}
	switch ev.Kind {
	case schemas.EventStarted:
		l.logger.Info("Scrape started.", fields...)
	case schemas.EventItemFound:
		l.logger.Debug("Item found.", append(fields, zap.Int("count", ev.Count))...)
	case schemas.EventPageAdvanced:
		l.logger.Debug("Advanced to next page.", append(fields, zap.Int("page", ev.Page))...)
	case schemas.EventWarning:
		l.logger.Warn("Scrape warning.", append(fields, zap.String("message", ev.Message))...)
	case schemas.EventCompleted:
		l.logger.Info("Scrape completed.", append(fields, zap.Int("total", ev.Count))...)
	case schemas.EventFailed:
		l.logger.Error("Scrape failed.", append(fields,
			zap.String("error_kind", ev.ErrorKind),
			zap.String("message", ev.Message))...)
	}
}

// ConsoleSink renders terse one-line progress to a writer, for interactive
// runs where the log output goes to a file.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w.
func NewConsoleSink(w io.Writer) (*ConsoleSink, error) {
	if w == nil {
		return nil, fmt.Errorf("writer must not be nil")
	}
	return &ConsoleSink{w: w}, nil
}

func (c *ConsoleSink) OnEvent(ev schemas.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case schemas.EventStarted:
		fmt.Fprintf(c.w, "-> %s\n", ev.Target)
	case schemas.EventItemFound:
		fmt.Fprintf(c.w, "   found %d item(s)\n", ev.Count)
	case schemas.EventPageAdvanced:
		fmt.Fprintf(c.w, "   page %d\n", ev.Page)
	case schemas.EventWarning:
		fmt.Fprintf(c.w, "   warning: %s\n", ev.Message)
	case schemas.EventCompleted:
		fmt.Fprintf(c.w, "<- %s: %d total\n", ev.Target, ev.Count)
	case schemas.EventFailed:
		fmt.Fprintf(c.w, "!! %s: %s (%s)\n", ev.Target, ev.Message, ev.ErrorKind)
	}
}
