package sla

import "github.com/spec-kit/sla-service/internal/domain"

const (
	highDelayHours     = 8.0
	criticalDelayHours = 24.0
)

// Classify maps a positive delay to a severity tier. Delays at or before the
// deadline are not violations and yield SeverityNone.
func Classify(delayHours float64) domain.Severity {
	switch {
	case delayHours > criticalDelayHours:
		return domain.SeverityCritical
	case delayHours > highDelayHours:
		return domain.SeverityHigh
	case delayHours > 0:
		return domain.SeverityMedium
	default:
		return domain.SeverityNone
	}
}
