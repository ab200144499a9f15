package api

import (
	"github.com/qualtrack/qualtrack/pkg/model"
)

// MeasurementRequest is the body of POST /internal-api/v1/measurements.
type MeasurementRequest struct {
	MetricUUID string                `json:"metric_uuid"`
	Sources    []*model.SourceResult `json:"sources"`
}

// OKResponse acknowledges an ingestion request. OK is false when the metric
// no longer exists and the collector should stop measuring it.
type OKResponse struct {
	OK bool `json:"ok"`
}

// MeasurementsResponse is the payload for GET /api/v1/measurements/{metricUUID}.
type MeasurementsResponse struct {
	Measurements []*model.Measurement `json:"measurements"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"`
	NrMeasurements int64  `json:"nr_measurements"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
