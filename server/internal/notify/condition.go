package notify

import (
	"strings"
)

// StatusChange describes one observed metric status transition on one scale.
type StatusChange struct {
	MetricUUID string
	MetricName string
	Scale      string
	OldStatus  string
	NewStatus  string
}

// evalCondition evaluates a rule condition string against a status change.
//
// Supported expressions (field operator value):
//
//	status == target_not_met
//	status != target_met
//	old_status == target_met
//	scale == percentage
//	metric == <metric uuid>
//
// The bare word "changed" matches every status transition.
//
// Returns false if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, ch StatusChange) bool {
	parts := strings.Fields(cond)
	if len(parts) == 1 && parts[0] == "changed" {
		return ch.NewStatus != ch.OldStatus
	}
	if len(parts) != 3 {
		return false
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	var v string
	switch field {
	case "status":
		v = ch.NewStatus
	case "old_status":
		v = ch.OldStatus
	case "scale":
		v = ch.Scale
	case "metric":
		v = ch.MetricUUID
	default:
		return false
	}

	switch op {
	case "==":
		return v == rhs
	case "!=":
		return v != rhs
	default:
		return false
	}
}
