package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/pkg/model"
)

// promCollector measures one metric family from a Prometheus text exposition
// endpoint. The "metric" parameter names the family to sum; the optional
// "total_metric" parameter names a second family whose sum becomes the
// measurement total (for percentage scales). One entity is reported per
// series in the measured family.
type promCollector struct {
	src    config.Source
	client *http.Client
}

func (c *promCollector) Collect(ctx context.Context) *model.SourceResult {
	res := newResult(c.src.SourceUUID)

	family := param(c.src, "metric", "")
	if family == "" {
		res.ParseError = "metric parameter is required"
		return res
	}

	mfs, connErr, parseErr := c.fetchMetrics(ctx)
	if connErr != "" {
		slog.Warn("source: prometheus fetch failed", "source", c.src.SourceUUID, "err", connErr)
		res.ConnectionError = connErr
		return res
	}
	if parseErr != "" {
		slog.Warn("source: prometheus parse failed", "source", c.src.SourceUUID, "err", parseErr)
		res.ParseError = parseErr
		return res
	}

	mf, ok := mfs[family]
	if !ok {
		res.ParseError = fmt.Sprintf("metric %q not found in scrape", family)
		return res
	}

	res.Value = formatSampleValue(sumFamily(mf))
	if totalFamily := param(c.src, "total_metric", ""); totalFamily != "" {
		res.Total = formatSampleValue(sumFamily(mfs[totalFamily]))
	}

	for _, m := range mf.GetMetric() {
		res.Entities = append(res.Entities, seriesEntity(family, m))
	}
	return res
}

// fetchMetrics performs an HTTP GET on the source endpoint and returns parsed
// metric families. Connection and parse failures are returned separately so
// the caller can mark the right error kind on the source result.
func (c *promCollector) fetchMetrics(ctx context.Context) (map[string]*dto.MetricFamily, string, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.src.Endpoint, nil)
	if err != nil {
		return nil, err.Error(), ""
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err.Error(), ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Sprintf("unexpected status %d", resp.StatusCode), ""
	}

	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return nil, "", err.Error()
	}
	return mfs, "", ""
}

// parseMetrics decodes a Prometheus text exposition from r into metric
// families. A partial result with a non-fatal parse warning is still returned
// successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	// Non-empty result with a non-nil err means partial parse (trailing
	// lines, format warnings). Treat as success.
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += sampleValue(m)
	}
	return total
}

// sampleValue returns the value of a single sample regardless of metric type.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	default:
		return 0
	}
}

// seriesEntity maps one series of the measured family to an entity. The key
// is the family name plus the sorted label pairs, which is stable across
// scrapes of the same series.
func seriesEntity(family string, m *dto.Metric) *model.Entity {
	labels := m.GetLabel()
	pairs := make([]string, 0, len(labels))
	attrs := make(map[string]string, len(labels)+2)
	for _, l := range labels {
		pairs = append(pairs, l.GetName()+"="+l.GetValue())
		attrs[l.GetName()] = l.GetValue()
	}
	sort.Strings(pairs)

	key := family
	if len(pairs) > 0 {
		key += "{" + strings.Join(pairs, ",") + "}"
	}
	attrs["name"] = key
	attrs["value"] = formatSampleValue(sampleValue(m))

	return &model.Entity{Key: key, Attributes: attrs}
}

// formatSampleValue renders a sample as the shortest exact decimal string.
func formatSampleValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
