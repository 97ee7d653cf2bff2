package audit

import (
	"context"
	"log/slog"
)

// Sink receives events from the Dispatcher's goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// ChannelSink hands events to a consumer over a channel. Emit blocks while
// the channel is full, which in turn backs up the Dispatcher.
type ChannelSink chan Event

func (s ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s <- event:
	case <-ctx.Done():
	}
}

// LogSink writes each event as one structured record under the "audit"
// key, at the event's Level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger writes nothing.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, event.Level(), "audit "+string(event.Kind),
		slog.Time("at", event.Time),
		slog.Any("audit", event),
	)
}
