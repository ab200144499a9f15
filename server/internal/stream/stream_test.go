package stream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testInterval = 5 * time.Millisecond

func TestPack(t *testing.T) {
	got := Pack(3, "delta", 42)
	want := "retry: 2000\nid: 3\nevent: delta\ndata: 42\n\n"
	if got != want {
		t.Errorf("Pack:\n got %q\nwant %q", got, want)
	}
}

// event is one parsed SSE frame.
type event struct {
	id    int64
	event string
	data  int64
}

// readEvents parses n SSE frames from r.
func readEvents(t *testing.T, r *bufio.Reader, n int) []event {
	t.Helper()
	var events []event
	var cur event
	for len(events) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream after %d events: %v", len(events), err)
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			cur.id, _ = strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64)
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data, _ = strconv.ParseInt(strings.TrimPrefix(line, "data: "), 10, 64)
		case line == "":
			events = append(events, cur)
			cur = event{}
		}
	}
	return events
}

func startStream(t *testing.T, counter Counter, lastEventID string) *bufio.Reader {
	t.Helper()
	srv := httptest.NewServer(New(counter, testInterval))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-Id", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got %q, want text/event-stream", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestStream_InitThenDeltas(t *testing.T) {
	var count atomic.Int64
	count.Store(7)
	counter := CounterFunc(func(context.Context) (int64, error) {
		return count.Load(), nil
	})

	r := startStream(t, counter, "")

	init := readEvents(t, r, 1)[0]
	if init.event != "init" {
		t.Fatalf("first event: got %q, want init", init.event)
	}
	if init.id != 0 {
		t.Errorf("init id: got %d, want 0", init.id)
	}
	if init.data != 7 {
		t.Errorf("init data: got %d, want 7", init.data)
	}

	count.Store(9)
	delta := readEvents(t, r, 1)[0]
	if delta.event != "delta" {
		t.Errorf("second event: got %q, want delta", delta.event)
	}
	if delta.id != 1 {
		t.Errorf("delta id: got %d, want 1", delta.id)
	}
	if delta.data != 9 {
		t.Errorf("delta data: got %d, want 9", delta.data)
	}
}

func TestStream_ResumesFromLastEventID(t *testing.T) {
	counter := CounterFunc(func(context.Context) (int64, error) { return 3, nil })
	r := startStream(t, counter, "41")

	init := readEvents(t, r, 1)[0]
	if init.id != 42 {
		t.Errorf("resumed init id: got %d, want 42", init.id)
	}
}

func TestStream_HeartbeatWhenUnchanged(t *testing.T) {
	counter := CounterFunc(func(context.Context) (int64, error) { return 5, nil })
	r := startStream(t, counter, "")

	events := readEvents(t, r, 2)
	if events[0].event != "init" {
		t.Fatalf("first event: got %q, want init", events[0].event)
	}
	// The count never changes, so the second event must be a heartbeat
	// delta carrying the same count.
	if events[1].event != "delta" {
		t.Errorf("heartbeat event: got %q, want delta", events[1].event)
	}
	if events[1].data != 5 {
		t.Errorf("heartbeat data: got %d, want 5", events[1].data)
	}
}

func TestStream_MonotonicIDsAndData(t *testing.T) {
	var count atomic.Int64
	counter := CounterFunc(func(context.Context) (int64, error) {
		return count.Add(1), nil // strictly growing count
	})

	r := startStream(t, counter, "")
	events := readEvents(t, r, 5)

	for i, ev := range events {
		if ev.id != int64(i) {
			t.Errorf("event %d: id %d, want %d", i, ev.id, i)
		}
		if i > 0 && ev.data < events[i-1].data {
			t.Errorf("event %d: data %d decreased from %d", i, ev.data, events[i-1].data)
		}
	}
}

func TestStream_StopsOnDisconnect(t *testing.T) {
	polled := make(chan struct{}, 64)
	counter := CounterFunc(func(context.Context) (int64, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return 1, nil
	})

	srv := httptest.NewServer(New(counter, testInterval))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	<-polled // stream is running
	cancel() // client goes away

	// After the disconnect propagates, polling must stop.
	deadline := time.After(time.Second)
	for {
		// Drain polls that were already in flight.
		select {
		case <-polled:
		case <-time.After(20 * testInterval):
			return // no polls for a while: loop has stopped
		case <-deadline:
			t.Fatal("stream kept polling after disconnect")
		}
	}
}

func TestStream_RejectsNonFlushableWriter(t *testing.T) {
	s := New(CounterFunc(func(context.Context) (int64, error) { return 0, nil }), testInterval)

	w := &plainWriter{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nr_measurements", nil)
	s.ServeHTTP(w, req)

	if w.status != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.status)
	}
}

// plainWriter implements http.ResponseWriter without http.Flusher.
type plainWriter struct {
	header http.Header
	status int
	body   strings.Builder
}

func (w *plainWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *plainWriter) WriteHeader(status int) { w.status = status }

func (w *plainWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return fmt.Fprint(&w.body, string(p))
}
