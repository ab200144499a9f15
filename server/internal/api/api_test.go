package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/api"
	"github.com/qualtrack/qualtrack/server/internal/auth"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
	"github.com/qualtrack/qualtrack/server/internal/engine"
	"github.com/qualtrack/qualtrack/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

const testCatalog = `
datamodel:
  metrics:
    failed_jobs:
      name: Failed CI jobs
      scales: [count]
      default_scale: count
      direction: "<"
metrics:
  metric-1:
    type: failed_jobs
    name: Nightly build failures
    subject_uuid: subject-1
    report_uuid: report-1
    target: {count: "0"}
    near_target: {count: "5"}
`

type fixture struct {
	store   *store.Store
	catalog *catalog.Catalog
	engine  *engine.Engine
	handler http.Handler
}

func newFixture(t *testing.T, deps func(*api.Deps)) *fixture {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	eng := engine.New(st, cat)
	d := api.Deps{Engine: eng, Store: st, Catalog: cat}
	if deps != nil {
		deps(&d)
	}
	return &fixture{store: st, catalog: cat, engine: eng, handler: api.New(d)}
}

func jobSources(value string, keys ...string) []*model.SourceResult {
	entities := make([]*model.Entity, 0, len(keys))
	for _, k := range keys {
		entities = append(entities, &model.Entity{Key: k, Attributes: map[string]string{"name": k}})
	}
	return []*model.SourceResult{{SourceUUID: "source-1", Value: value, Entities: entities}}
}

func postJSON(t *testing.T, h http.Handler, path string, body any, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if prepare != nil {
		prepare(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func ingest(t *testing.T, f *fixture, value string, keys ...string) {
	t.Helper()
	rr := postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{MetricUUID: "metric-1", Sources: jobSources(value, keys...)}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest: status %d (body: %s)", rr.Code, rr.Body.String())
	}
}

// --- tests ------------------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "2", "job1")

	rr := get(t, f.handler, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status field: got %q, want ok", resp.Status)
	}
	if resp.NrMeasurements != 1 {
		t.Errorf("nr_measurements: got %d, want 1", resp.NrMeasurements)
	}
}

func TestPostMeasurement_KnownMetric(t *testing.T) {
	f := newFixture(t, nil)

	rr := postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{MetricUUID: "metric-1", Sources: jobSources("2", "job1")}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.OKResponse
	decode(t, rr, &resp)
	if !resp.OK {
		t.Error("ok: got false, want true")
	}

	m, err := f.store.LatestMeasurement(context.Background(), "metric-1")
	if err != nil || m == nil {
		t.Fatalf("measurement not stored: m=%v err=%v", m, err)
	}
	if m.Scales["count"].Value != "2" {
		t.Errorf("count value: got %q, want 2", m.Scales["count"].Value)
	}
}

func TestPostMeasurement_DeletedMetric(t *testing.T) {
	f := newFixture(t, nil)

	rr := postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{MetricUUID: "deleted-metric", Sources: jobSources("2")}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.OKResponse
	decode(t, rr, &resp)
	if resp.OK {
		t.Error("ok: got true, want false for a deleted metric")
	}
}

func TestPostMeasurement_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal-api/v1/measurements",
		bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid json: got %d, want 400", rr.Code)
	}

	rr = postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{Sources: jobSources("2")}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing metric_uuid: got %d, want 400", rr.Code)
	}
}

func TestPostMeasurement_APIKeyEnforced(t *testing.T) {
	f := newFixture(t, func(d *api.Deps) {
		d.APIKey = auth.APIKey("apikey", "x-api-key", "secret")
	})

	rr := postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{MetricUUID: "metric-1", Sources: jobSources("2")}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("without key: got %d, want 401", rr.Code)
	}

	rr = postJSON(t, f.handler, "/internal-api/v1/measurements",
		api.MeasurementRequest{MetricUUID: "metric-1", Sources: jobSources("2")},
		func(r *http.Request) { r.Header.Set("x-api-key", "secret") })
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d, want 200", rr.Code)
	}

	// Read routes stay open.
	if rr := get(t, f.handler, "/api/v1/health"); rr.Code != http.StatusOK {
		t.Errorf("health with auth on: got %d, want 200", rr.Code)
	}
}

func TestSetEntityAttribute(t *testing.T) {
	f := newFixture(t, func(d *api.Deps) {
		d.Session = auth.Session(d.Store)
	})
	ingest(t, f, "1", "job1")

	sess := &store.Session{SessionID: "sess-1", User: "jadoe", Email: "jadoe@example.org"}
	if err := f.store.UpsertSession(context.Background(), sess); err != nil {
		t.Fatalf("upsert session: %v", err)
	}

	rr := postJSON(t, f.handler,
		"/api/v1/measurement/metric-1/source/source-1/entity/job1/rationale",
		map[string]any{"rationale": "flaky environment"},
		func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "sess-1"})
		})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}

	var m model.Measurement
	decode(t, rr, &m)
	if got := m.Sources[0].EntityUserData["job1"]["rationale"]; got != "flaky environment" {
		t.Errorf("entity_user_data: got %v, want flaky environment", got)
	}
	if m.Delta == nil {
		t.Fatal("delta: got nil, want audit record")
	}
	if m.Delta.Email != "jadoe@example.org" {
		t.Errorf("delta email: got %q", m.Delta.Email)
	}
}

func TestSetEntityAttribute_NoSession(t *testing.T) {
	f := newFixture(t, func(d *api.Deps) {
		d.Session = auth.Session(d.Store)
	})
	ingest(t, f, "1", "job1")

	rr := postJSON(t, f.handler,
		"/api/v1/measurement/metric-1/source/source-1/entity/job1/rationale",
		map[string]any{"rationale": "flaky"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestSetEntityAttribute_UnknownEntity(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "1", "job1")

	rr := postJSON(t, f.handler,
		"/api/v1/measurement/metric-1/source/source-1/entity/nope/rationale",
		map[string]any{"rationale": "flaky"}, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestSetEntityAttribute_MissingAttributeInBody(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "1", "job1")

	rr := postJSON(t, f.handler,
		"/api/v1/measurement/metric-1/source/source-1/entity/job1/rationale",
		map[string]any{"comment": "wrong key"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestListMeasurements(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "1", "job1")
	ingest(t, f, "2", "job1", "job2")

	rr := get(t, f.handler, "/api/v1/measurements/metric-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.MeasurementsResponse
	decode(t, rr, &resp)
	if len(resp.Measurements) == 0 {
		t.Fatal("measurements: got none, want the current one")
	}
	last := resp.Measurements[len(resp.Measurements)-1]
	if last.Scales["count"].Value != "2" {
		t.Errorf("current value: got %q, want 2", last.Scales["count"].Value)
	}
}

func TestListMeasurements_TrailingAmpersandSuffixIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "1", "job1")

	// Older clients append query-style parameters with a literal "&"
	// inside the path segment.
	rr := get(t, f.handler, "/api/v1/measurements/metric-1&report_date=2026-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.MeasurementsResponse
	decode(t, rr, &resp)
	if len(resp.Measurements) != 1 {
		t.Errorf("measurements: got %d, want 1", len(resp.Measurements))
	}
}

func TestListMeasurements_ReportDate(t *testing.T) {
	f := newFixture(t, nil)
	ingest(t, f, "1", "job1")

	// A report date far in the past precedes every stored measurement.
	rr := get(t, f.handler, "/api/v1/measurements/metric-1?report_date=2000-01-01")
	var resp api.MeasurementsResponse
	decode(t, rr, &resp)
	if len(resp.Measurements) != 0 {
		t.Errorf("measurements before history: got %d, want 0", len(resp.Measurements))
	}

	rr = get(t, f.handler, "/api/v1/measurements/metric-1?report_date=not-a-date")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid report_date: got %d, want 400", rr.Code)
	}
}

func TestListMeasurements_UnknownMetric(t *testing.T) {
	f := newFixture(t, nil)

	rr := get(t, f.handler, "/api/v1/measurements/nope")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.MeasurementsResponse
	decode(t, rr, &resp)
	if len(resp.Measurements) != 0 {
		t.Errorf("measurements: got %d, want 0", len(resp.Measurements))
	}
}

func TestNotifications_EmptyWithoutNotifier(t *testing.T) {
	f := newFixture(t, nil)

	rr := get(t, f.handler, "/api/v1/notifications")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []json.RawMessage
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("notifications: got %d, want 0", len(resp))
	}
}
