package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/pkg/model"
)

const defaultCollectTimeout = 30 * time.Second

// Collector is the common interface implemented by every tool collector.
// Collect returns a SourceResult even when the tool is unreachable or its
// response is malformed; such failures are recorded on the result itself.
type Collector interface {
	Collect(ctx context.Context) *model.SourceResult
}

// New returns the appropriate Collector for the given source configuration.
// It builds the HTTP client once and reuses it across collect calls.
func New(src config.Source) (Collector, error) {
	client := buildHTTPClient(src)
	switch src.Type {
	case "jenkins":
		return &jenkinsCollector{src: src, client: client, now: time.Now}, nil
	case "prometheus":
		return &promCollector{src: src, client: client}, nil
	case "robotframework":
		return &robotCollector{src: src, client: client}, nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	src  config.Source
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.src.Auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.src.Auth.EffectiveHeader(), t.src.Auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.src.Auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.src.Auth.Username, t.src.Auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS
// settings.
func buildHTTPClient(src config.Source) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg},
		src:  src,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultCollectTimeout,
	}
}

// newResult initialises an empty SourceResult for the source.
func newResult(sourceUUID string) *model.SourceResult {
	return &model.SourceResult{SourceUUID: sourceUUID}
}

// param returns the source parameter, or fallback when it is not configured.
func param(src config.Source, name, fallback string) string {
	if v, ok := src.Params[name]; ok && v != "" {
		return v
	}
	return fallback
}
