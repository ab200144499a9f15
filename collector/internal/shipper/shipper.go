package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/pkg/model"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	measurementsPath = "/internal-api/v1/measurements"
)

// Payload is one measurement submission: all source results collected for a
// metric in a single cycle.
type Payload struct {
	MetricUUID string                `json:"metric_uuid"`
	Sources    []*model.SourceResult `json:"sources"`
}

// ack is the server's acknowledgement body.
type ack struct {
	OK bool `json:"ok"`
}

// Shipper buffers measurement payloads and ships them to the qualtrack
// server. Ship() is non-blocking; when the buffer is full the oldest payload
// is evicted. Run() must be called in a goroutine to drain the buffer and
// handle retries.
type Shipper struct {
	cfg    config.CollectorConfig
	buf    chan *Payload
	client *http.Client
}

// New creates a Shipper using the given collector config.
func New(cfg config.CollectorConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *Payload, cfg.BufferSize),
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Ship enqueues a payload for delivery. If the buffer is full the oldest
// entry is evicted to make room.
func (s *Shipper) Ship(p *Payload) {
	select {
	case s.buf <- p:
	default:
		// Buffer full — drop the oldest payload, keep the newest.
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest payload",
				"metric", p.MetricUUID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- p
	}
}

// Run drains the buffer, posting payloads to the server. It retries with
// exponential backoff on connection and server errors. Run blocks until ctx
// is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-s.buf:
			err := s.send(ctx, p)
			if err == nil {
				bo.reset()
				continue
			}
			if ctx.Err() != nil {
				return
			}

			if isPermanent(err) {
				slog.Error("shipper: permanent send error, discarding payload",
					"metric", p.MetricUUID, "err", err)
				continue
			}

			// Put the payload back if there's room; drop it otherwise since
			// the next cycle measures the same metric again.
			select {
			case s.buf <- p:
			default:
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.cfg.ServerEndpoint, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// send posts one payload to the server's internal measurements endpoint.
func (s *Shipper) send(ctx context.Context, p *Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return permanentError{fmt.Errorf("marshal payload: %w", err)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost,
		s.cfg.ServerEndpoint+measurementsPath, bytes.NewReader(body))
	if err != nil {
		return permanentError{err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.ServerAuth.Mode == "apikey" && s.cfg.ServerAuth.KeyEnv != "" {
		req.Header.Set(s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return permanentError{fmt.Errorf("server rejected payload: status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("send: unexpected status %d", resp.StatusCode)
	}

	var a ack
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil && err != io.EOF {
		return fmt.Errorf("decode ack: %w", err)
	}
	if !a.OK {
		// The metric no longer exists on the server; nothing to retry.
		slog.Warn("shipper: server reported metric gone", "metric", p.MetricUUID)
	} else {
		slog.Debug("shipper: payload delivered", "metric", p.MetricUUID)
	}
	return nil
}

// permanentError marks a send failure that should not be retried.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	_, ok := err.(permanentError)
	return ok
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
