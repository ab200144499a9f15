package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qualtrack/qualtrack/pkg/model"
)

// ErrNotFound marks caller errors: editing a metric, source, or entity that
// does not exist in the current measurement.
var ErrNotFound = errors.New("not found")

// User identifies the person performing an entity edit.
type User struct {
	Name  string
	Email string
}

// SetEntityAttribute records a user edit of one entity's annotation
// attribute as a brand-new measurement whose only difference from the
// current one is the single annotation and its audit delta. The
// deduplication short-circuit is deliberately bypassed: an explicit edit is
// always new information.
func (e *Engine) SetEntityAttribute(ctx context.Context, metricUUID, sourceUUID, entityKey, attribute string, value any, user User) (*model.Measurement, error) {
	metric, ok := e.catalog.Metric(metricUUID)
	if !ok {
		return nil, fmt.Errorf("metric %q: %w", metricUUID, ErrNotFound)
	}
	m, err := e.store.LatestMeasurement(ctx, metricUUID)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch current measurement: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("metric %q has no measurement: %w", metricUUID, ErrNotFound)
	}

	source := m.Source(sourceUUID)
	if source == nil {
		return nil, fmt.Errorf("source %q: %w", sourceUUID, ErrNotFound)
	}
	entity := source.Entity(entityKey)
	if entity == nil {
		return nil, fmt.Errorf("entity %q: %w", entityKey, ErrNotFound)
	}

	oldValue := ""
	if v, ok := source.EntityUserData[entityKey][attribute]; ok && v != nil {
		oldValue = fmt.Sprintf("%v", v)
	}

	if source.EntityUserData == nil {
		source.EntityUserData = make(map[string]map[string]any)
	}
	if source.EntityUserData[entityKey] == nil {
		source.EntityUserData[entityKey] = make(map[string]any)
	}
	source.EntityUserData[entityKey][attribute] = value

	m.Delta = &model.Delta{
		UUIDs: []string{metric.ReportUUID, metric.SubjectUUID, metricUUID, sourceUUID},
		Description: fmt.Sprintf("%s changed the %s of '%s' from '%s' to '%v'.",
			user.Name, attribute, entity.Description(), oldValue, value),
		Email: user.Email,
	}

	// Reset identity and window so the store records a fresh measurement.
	m.MeasurementUUID = ""
	m.Start, m.End = time.Time{}, time.Time{}
	if err := e.insertNew(ctx, metric, m); err != nil {
		return nil, err
	}
	return m, nil
}
