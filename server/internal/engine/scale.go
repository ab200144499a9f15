package engine

import (
	"strconv"
	"time"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
)

// scaleResults computes the per-scale value, status, and target snapshot for
// a new measurement from the live metric definition. The target snapshot is
// what later debt evaluations inspect for the presence of a debt target.
func (e *Engine) scaleResults(metric *catalog.Metric, sources []*model.SourceResult, now time.Time) map[string]*model.ScaleResult {
	scales := e.catalog.Scales(metric.Type)
	if len(scales) == 0 {
		return nil
	}
	direction := e.catalog.Direction(metric)

	results := make(map[string]*model.ScaleResult, len(scales))
	for _, scale := range scales {
		sr := &model.ScaleResult{
			Direction:  direction,
			Target:     metric.Target[scale],
			NearTarget: metric.NearTarget[scale],
		}
		if dt, ok := metric.DebtTarget[scale]; ok {
			v := dt
			sr.DebtTarget = &v
		}
		sr.Value = scaleValue(scale, direction, sources)
		sr.Status = scaleStatus(sr, metric, now)
		results[scale] = sr
	}
	return results
}

// scaleValue derives the measurement value for one scale from the source
// results. An empty string means the value is unknown: at least one source
// failed to collect or did not report a parseable value.
func scaleValue(scale, direction string, sources []*model.SourceResult) string {
	var valueSum, totalSum int
	for _, s := range sources {
		if s.ConnectionError != "" || s.ParseError != "" {
			return ""
		}
		v, err := strconv.Atoi(s.Value)
		if err != nil {
			return ""
		}
		valueSum += v
		if s.Total != "" {
			t, err := strconv.Atoi(s.Total)
			if err != nil {
				return ""
			}
			totalSum += t
		}
	}

	switch scale {
	case "percentage":
		if totalSum == 0 {
			// Nothing measured: vacuously perfect when fewer is better.
			if direction == ">" {
				return "100"
			}
			return "0"
		}
		return strconv.Itoa(int(float64(valueSum)/float64(totalSum)*100 + 0.5))
	default:
		return strconv.Itoa(valueSum)
	}
}

// scaleStatus compares the measured value against the snapshotted targets.
// An empty status means the value or target is unknown.
func scaleStatus(sr *model.ScaleResult, metric *catalog.Metric, now time.Time) string {
	if sr.Value == "" {
		return ""
	}
	value, err := strconv.Atoi(sr.Value)
	if err != nil {
		return ""
	}
	target, err := strconv.Atoi(sr.Target)
	if err != nil {
		return ""
	}

	betterOrEqual := func(v, t int) bool {
		if sr.Direction == ">" {
			return v >= t
		}
		return v <= t
	}

	if betterOrEqual(value, target) {
		return model.StatusTargetMet
	}
	if sr.DebtTarget != nil && !debtPolicyExpired(metric, now) {
		if dt, err := strconv.Atoi(*sr.DebtTarget); err == nil && betterOrEqual(value, dt) {
			return model.StatusDebtTargetMet
		}
	}
	if near, err := strconv.Atoi(sr.NearTarget); err == nil && betterOrEqual(value, near) {
		return model.StatusNearTargetMet
	}
	return model.StatusTargetNotMet
}
