package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/auth"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
	"github.com/qualtrack/qualtrack/server/internal/engine"
	"github.com/qualtrack/qualtrack/server/internal/notify"
	"github.com/qualtrack/qualtrack/server/internal/store"
)

// Deps are the collaborators the HTTP API routes to. Engine, Store and
// Catalog are required; the rest are optional and their routes or behaviour
// are skipped when nil.
type Deps struct {
	Engine   *engine.Engine
	Store    *store.Store
	Catalog  *catalog.Catalog
	Notifier *notify.Engine
	Streamer http.Handler // SSE count stream
	Hub      http.Handler // WebSocket count stream

	// APIKey guards the collector-facing ingestion route.
	APIKey func(http.Handler) http.Handler
	// Session guards the user-facing entity edit route.
	Session func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all qualtrack-server endpoints.
type Handler struct {
	deps Deps
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, now: time.Now}

	r := chi.NewRouter()
	r.Get("/api/v1/health", h.health)
	r.Get("/api/v1/measurements/{metricUUID}", h.listMeasurements)
	r.Get("/api/v1/notifications", h.notifications)

	r.Group(func(r chi.Router) {
		if deps.APIKey != nil {
			r.Use(deps.APIKey)
		}
		r.Post("/internal-api/v1/measurements", h.postMeasurement)
	})

	r.Group(func(r chi.Router) {
		if deps.Session != nil {
			r.Use(deps.Session)
		}
		r.Post("/api/v1/measurement/{metricUUID}/source/{sourceUUID}/entity/{entityKey}/{attribute}", h.setEntityAttribute)
	})

	if deps.Streamer != nil {
		r.Get("/api/v1/nr_measurements", deps.Streamer.ServeHTTP)
	}
	if deps.Hub != nil {
		r.Get("/ws/nr_measurements", deps.Hub.ServeHTTP)
	}

	return r
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — liveness plus the total measurement
// count, which doubles as a cheap end-to-end store check.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Store.CountMeasurements(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", NrMeasurements: n})
}

// postMeasurement handles POST /internal-api/v1/measurements — one freshly
// collected payload from a collector. The response tells the collector
// whether the metric still exists.
func (h *Handler) postMeasurement(w http.ResponseWriter, r *http.Request) {
	var req MeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.MetricUUID == "" {
		jsonErr(w, http.StatusBadRequest, "metric_uuid is required")
		return
	}

	status, m, err := h.deps.Engine.Ingest(r.Context(), req.MetricUUID, req.Sources)
	if err != nil {
		slog.Error("api: ingest failed", "metric_uuid", req.MetricUUID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	if status == engine.StatusInserted && h.deps.Notifier != nil {
		name := req.MetricUUID
		if metric, ok := h.deps.Catalog.Metric(req.MetricUUID); ok && metric.Name != "" {
			name = metric.Name
		}
		h.deps.Notifier.Observe(req.MetricUUID, name, m)
	}

	jsonResp(w, http.StatusOK, OKResponse{OK: status != engine.StatusMetricGone})
}

// setEntityAttribute handles the entity annotation route. The body carries
// the new value keyed by the attribute name, matching the route's last
// segment:
//
//	POST .../entity/abc123/rationale  {"rationale": "flaky environment"}
func (h *Handler) setEntityAttribute(w http.ResponseWriter, r *http.Request) {
	metricUUID := chi.URLParam(r, "metricUUID")
	sourceUUID := chi.URLParam(r, "sourceUUID")
	entityKey := chi.URLParam(r, "entityKey")
	attribute := chi.URLParam(r, "attribute")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	value, ok := body[attribute]
	if !ok {
		jsonErr(w, http.StatusBadRequest, "body must contain the "+attribute+" attribute")
		return
	}

	var user engine.User
	if sess, ok := auth.UserFrom(r.Context()); ok {
		user = engine.User{Name: sess.User, Email: sess.Email}
	}

	m, err := h.deps.Engine.SetEntityAttribute(r.Context(), metricUUID, sourceUUID, entityKey, attribute, value, user)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("api: entity edit failed", "metric_uuid", metricUUID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "edit failed")
		return
	}
	jsonResp(w, http.StatusOK, m)
}

// listMeasurements handles GET /api/v1/measurements/{metricUUID} — the
// metric's measurements whose validity window covers the report_date query
// parameter (default: now). Older dashboard clients append extra
// &-delimited parameters to the path segment; anything after the first "&"
// is ignored.
func (h *Handler) listMeasurements(w http.ResponseWriter, r *http.Request) {
	metricUUID := chi.URLParam(r, "metricUUID")
	if i := strings.Index(metricUUID, "&"); i >= 0 {
		metricUUID = metricUUID[:i]
	}

	at := h.now().UTC()
	if param := r.URL.Query().Get("report_date"); param != "" {
		parsed, err := parseReportDate(param)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid report_date")
			return
		}
		at = parsed
	}

	measurements, err := h.deps.Store.MeasurementsAt(r.Context(), metricUUID, at)
	if err != nil {
		slog.Error("api: list measurements failed", "metric_uuid", metricUUID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if measurements == nil {
		measurements = []*model.Measurement{}
	}
	jsonResp(w, http.StatusOK, MeasurementsResponse{Measurements: measurements})
}

// notifications returns GET /api/v1/notifications — all firing notifications
// plus those resolved within the past hour.
func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	if h.deps.Notifier == nil {
		jsonResp(w, http.StatusOK, []*notify.Notification{})
		return
	}
	jsonResp(w, http.StatusOK, h.deps.Notifier.Active())
}

// --- helpers ----------------------------------------------------------------

// parseReportDate accepts both full timestamps and bare dates.
func parseReportDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	// A bare date means "end of that day" so the day's measurements are
	// included.
	return t.Add(24*time.Hour - time.Nanosecond).UTC(), nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
