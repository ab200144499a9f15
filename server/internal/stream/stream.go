package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultInterval is the production poll interval.
	DefaultInterval = 10 * time.Second

	// maxSkipped is how many unchanged polls are tolerated before a
	// heartbeat delta event is emitted anyway, keeping the connection warm.
	maxSkipped = 5

	// retryMillis is the reconnect delay advertised to SSE clients.
	retryMillis = 2000
)

// Counter provides the total number of stored measurements. The counter is
// monotonically non-decreasing; *store.Store satisfies the interface.
type Counter interface {
	CountMeasurements(ctx context.Context) (int64, error)
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(ctx context.Context) (int64, error)

func (f CounterFunc) CountMeasurements(ctx context.Context) (int64, error) { return f(ctx) }

// Streamer serves the measurement count as a Server-Sent Events stream.
// Observers are fully independent: each connection runs its own poll loop
// with its own event id sequence and mutates no shared state.
type Streamer struct {
	counter  Counter
	interval time.Duration
}

// New creates a Streamer polling counter every interval.
func New(counter Counter, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Streamer{counter: counter, interval: interval}
}

// Pack formats one Server-Sent Events frame.
func Pack(eventID int64, event string, data int64) string {
	return fmt.Sprintf("retry: %d\nid: %d\nevent: %s\ndata: %d\n\n", retryMillis, eventID, event, data)
}

// ServeHTTP upgrades the connection to a persistent event stream and blocks
// until the client disconnects.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Resuming clients present the last event id they saw; the sequence
	// continues from the next id. New clients start at 0.
	lastEventID := int64(-1)
	if header := r.Header.Get("Last-Event-Id"); header != "" {
		if id, err := strconv.ParseInt(header, 10, 64); err == nil {
			lastEventID = id
		}
	}

	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	s.stream(r.Context(), w, flusher.Flush, lastEventID)
}

// stream runs one observer's poll loop until ctx is cancelled.
func (s *Streamer) stream(ctx context.Context, w io.Writer, flush func(), lastEventID int64) {
	eventID := lastEventID + 1

	count, err := s.counter.CountMeasurements(ctx)
	if err != nil {
		slog.Error("stream: initial count failed", "err", err)
		return
	}
	slog.Info("stream: observer connected", "nr_measurements", count, "event_id", eventID)
	if _, err := io.WriteString(w, Pack(eventID, "init", count)); err != nil {
		return
	}
	flush()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	skipped := 0
	for {
		select {
		case <-ctx.Done():
			slog.Debug("stream: observer disconnected", "event_id", eventID)
			return

		case <-ticker.C:
			newCount, err := s.counter.CountMeasurements(ctx)
			if err != nil {
				slog.Warn("stream: count failed, retrying next tick", "err", err)
				continue
			}
			if newCount > count || skipped > maxSkipped {
				skipped = 0
				count = newCount
				eventID++
				if _, err := io.WriteString(w, Pack(eventID, "delta", count)); err != nil {
					return
				}
				flush()
			} else {
				skipped++
			}
		}
	}
}
