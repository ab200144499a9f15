package engine

import (
	"time"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
)

const isoDate = "2006-01-02"

// debtTargetExpired reports whether the metric's accepted technical debt has
// expired: either the user turned debt acceptance off, or the debt end date
// passed.
//
// When no applicable scale on the measurement carries a debt-target value
// there is nothing to expire and the result is false. The decision always
// uses the metric's live definition, never the one stored with the old
// measurement, so toggling debt acceptance off invalidates deduplication on
// the very next collection cycle. The current time is passed in explicitly.
func debtTargetExpired(scales []string, metric *catalog.Metric, m *model.Measurement, now time.Time) bool {
	anyDebtTarget := false
	for _, scale := range scales {
		if sr, ok := m.Scales[scale]; ok && sr.DebtTarget != nil {
			anyDebtTarget = true
			break
		}
	}
	if !anyDebtTarget {
		return false
	}

	return debtPolicyExpired(metric, now)
}

// debtPolicyExpired checks only the metric's debt policy: debt acceptance
// turned off, or the end date passed. An absent end date never expires.
func debtPolicyExpired(metric *catalog.Metric, now time.Time) bool {
	if metric.AcceptDebt != nil && !*metric.AcceptDebt {
		return true
	}
	if metric.DebtEndDate == "" {
		return false
	}
	return metric.DebtEndDate < now.UTC().Format(isoDate)
}
