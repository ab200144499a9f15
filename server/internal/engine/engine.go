package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
)

// Store is the measurement persistence the engine writes through.
// *store.Store satisfies it.
type Store interface {
	LatestMeasurement(ctx context.Context, metricUUID string) (*model.Measurement, error)
	LatestSuccessfulMeasurement(ctx context.Context, metricUUID string) (*model.Measurement, error)
	InsertMeasurement(ctx context.Context, m *model.Measurement) error
	UpdateMeasurementEnd(ctx context.Context, measurementUUID string, end time.Time) error
}

// Catalog is the read-only metric and data model lookup.
// *catalog.Catalog satisfies it.
type Catalog interface {
	Metric(uuid string) (*catalog.Metric, bool)
	Scales(metricType string) []string
	Direction(m *catalog.Metric) string
}

// IngestStatus is the outcome of one Ingest call.
type IngestStatus int

const (
	// StatusMetricGone means the metric was deleted while being measured.
	// Nothing was written; this is a soft outcome, not an error.
	StatusMetricGone IngestStatus = iota

	// StatusMerged means the measurement repeated the current one and only
	// the current record's validity window was extended.
	StatusMerged

	// StatusInserted means a new measurement record was stored.
	StatusInserted
)

// Engine is the measurement ingestion core. It holds no per-metric state;
// the store is the single source of truth for "current measurement", so
// concurrent calls for different metrics are fully independent.
type Engine struct {
	store   Store
	catalog Catalog
	now     func() time.Time // injectable for deterministic tests
}

// New creates an Engine writing through st and consulting cat.
func New(st Store, cat Catalog) *Engine {
	return &Engine{store: st, catalog: cat, now: time.Now}
}

// Ingest processes one freshly collected measurement payload for a metric.
//
// When the payload turns out to repeat the metric's current measurement and
// the metric's accepted-debt target has not expired, the current record's
// window end is advanced to now and no new record is written. Otherwise the
// payload is stored as the metric's new current measurement. Either way at
// most one store write happens per call.
//
// The returned measurement is the record that now represents the metric's
// current state; it is nil when the metric no longer exists.
func (e *Engine) Ingest(ctx context.Context, metricUUID string, sources []*model.SourceResult) (IngestStatus, *model.Measurement, error) {
	metric, ok := e.catalog.Metric(metricUUID)
	if !ok {
		// Deleted while being measured. The collector decides whether to
		// keep polling; nothing to record here.
		slog.Debug("engine: metric gone, dropping measurement", "metric_uuid", metricUUID)
		return StatusMetricGone, nil, nil
	}

	latest, err := e.store.LatestMeasurement(ctx, metricUUID)
	if err != nil {
		return 0, nil, fmt.Errorf("engine: fetch current measurement: %w", err)
	}

	if latest != nil {
		// The annotation baseline is the last fully successful measurement
		// when there is one; a failed collection cycle must not erase
		// annotations that are still valid.
		baseline := latest.Sources
		successful, err := e.store.LatestSuccessfulMeasurement(ctx, metricUUID)
		if err != nil {
			return 0, nil, fmt.Errorf("engine: fetch successful measurement: %w", err)
		}
		if successful != nil {
			baseline = successful.Sources
		}
		copyEntityUserData(baseline, sources)

		scales := e.catalog.Scales(metric.Type)
		if !debtTargetExpired(scales, metric, latest, e.now()) && model.SourcesEqual(latest.Sources, sources) {
			if err := e.store.UpdateMeasurementEnd(ctx, latest.MeasurementUUID, e.now()); err != nil {
				return 0, nil, fmt.Errorf("engine: extend window: %w", err)
			}
			slog.Debug("engine: merged repeat measurement",
				"metric_uuid", metricUUID, "measurement_uuid", latest.MeasurementUUID)
			return StatusMerged, latest, nil
		}
	}

	m := &model.Measurement{MetricUUID: metricUUID, Sources: sources}
	if err := e.insertNew(ctx, metric, m); err != nil {
		return 0, nil, err
	}
	slog.Info("engine: stored new measurement",
		"metric_uuid", metricUUID, "measurement_uuid", m.MeasurementUUID)
	return StatusInserted, m, nil
}

// insertNew computes the per-scale results from the live metric definition
// and stores m as the metric's new current measurement.
func (e *Engine) insertNew(ctx context.Context, metric *catalog.Metric, m *model.Measurement) error {
	m.Scales = e.scaleResults(metric, m.Sources, e.now())
	if err := e.store.InsertMeasurement(ctx, m); err != nil {
		return fmt.Errorf("engine: insert measurement: %w", err)
	}
	return nil
}
