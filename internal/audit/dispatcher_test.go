package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type gateSink struct {
	gate chan struct{}
	mu   sync.Mutex
	got  []Event
}

func (s *gateSink) Emit(_ context.Context, e Event) {
	<-s.gate
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := make(ChannelSink, 8)
	d := NewDispatcher(Config{BufferSize: 8}, sink)

	for _, subject := range []int64{1, 2, 3} {
		d.Emit(context.Background(), Event{Kind: KindRotated, Subject: subject})
	}
	d.Close()

	var got []int64
	for i := 0; i < 3; i++ {
		got = append(got, (<-sink).Subject)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.Equal(t, uint64(3), d.Delivered())
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true}, sink)

	// First event is taken by the goroutine and blocks in the sink, the
	// second fills the buffer, the rest must be dropped.
	d.Emit(context.Background(), Event{Kind: KindRotateRejected})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{Kind: KindRotateRejected})
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Kind: KindRotateRejected})
	}

	assert.Equal(t, uint64(5), d.Dropped())

	close(sink.gate)
	d.Close()
	assert.Equal(t, uint64(2), d.Delivered())
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{Kind: KindRotateRejected})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{Kind: KindRotateRejected})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Kind: KindRotateRejected})
	assert.Equal(t, uint64(1), d.Dropped())

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseIsIdempotentAndNilSafe(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Kind: KindRotateRejected})
	assert.Zero(t, d.Delivered())

	var nilDispatcher *Dispatcher
	nilDispatcher.Emit(context.Background(), Event{})
	nilDispatcher.Close()
	assert.Zero(t, nilDispatcher.Dropped())
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sink.Emit(context.Background(), Event{Time: at, Kind: KindRefreshReplay, Subject: 7, Reason: ReasonRefreshReplayed})
	sink.Emit(context.Background(), Event{Time: at, Kind: KindRotateRejected, Reason: ReasonAccessForged})
	sink.Emit(context.Background(), Event{Time: at, Kind: KindSessionIssued, Subject: 7, Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	type record struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
		Audit struct {
			Kind    string `json:"kind"`
			UserID  string `json:"user_id"`
			Reason  string `json:"reason"`
			Success bool   `json:"success"`
		} `json:"audit"`
	}
	var got []record
	for _, line := range lines {
		var r record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		got = append(got, r)
	}

	assert.Equal(t, "ERROR", got[0].Level)
	assert.Equal(t, "audit refresh_replay_detected", got[0].Msg)
	assert.Equal(t, "refresh_replayed", got[0].Audit.Reason)
	assert.Equal(t, "7", got[0].Audit.UserID)

	assert.Equal(t, "WARN", got[1].Level)
	assert.Equal(t, "access_forged", got[1].Audit.Reason)
	assert.Empty(t, got[1].Audit.UserID)

	assert.Equal(t, "INFO", got[2].Level)
	assert.True(t, got[2].Audit.Success)
	assert.NotContains(t, lines[2], "reason")
}

func TestLogSinkNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogSink(nil).Emit(context.Background(), Event{Kind: KindRotated})
		var sink *LogSink
		sink.Emit(context.Background(), Event{Kind: KindRotated})
	})
}

func TestReasonClassification(t *testing.T) {
	verdicts := map[Reason]bool{
		ReasonAccessMalformed:   true,
		ReasonAccessForged:      true,
		ReasonRefreshUnknown:    true,
		ReasonRefreshExpired:    true,
		ReasonRefreshReplayed:   true,
		ReasonSubjectMismatch:   true,
		ReasonSessionMismatch:   true,
		ReasonRateLimited:       false,
		ReasonLedgerUnavailable: false,
		ReasonIssueFailed:       false,
	}

	reasons := Reasons()
	require.Len(t, reasons, len(verdicts))
	for _, r := range reasons {
		want, ok := verdicts[r]
		require.True(t, ok, "unexpected reason %d", r)
		assert.Equal(t, want, r.Verdict(), r.String())
		assert.NotEmpty(t, r.String())
	}
	assert.False(t, ReasonNone.Verdict())
	assert.Equal(t, "unknown", Reason(200).String())
}

func TestEventJSONUsesReasonNames(t *testing.T) {
	data, err := json.Marshal(Event{Kind: KindRotateRejected, Reason: ReasonSessionMismatch, Subject: 9})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reason":"session_mismatch"`)
	assert.Contains(t, string(data), `"subject":9`)

	data, err = json.Marshal(Event{Kind: KindRotated, Success: true})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "reason")
	assert.NotContains(t, string(data), "subject")
}
