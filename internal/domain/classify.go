package domain

import (
	"fmt"
	"math"
)

// Severity thresholds on the pressure drop, in bar. Intervals are closed on
// the low end and open on the high end.
const (
	mediumDropThreshold   = 0.2
	highDropThreshold     = 0.5
	criticalDropThreshold = 1.0
)

// Classify maps a pressure drop to a severity. It never returns SeverityInfo.
func Classify(pressureDrop float64) Severity {
	switch {
	case pressureDrop >= criticalDropThreshold:
		return SeverityCritical
	case pressureDrop >= highDropThreshold:
		return SeverityHigh
	case pressureDrop >= mediumDropThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Describe returns the operator-facing description for a detected alert.
func Describe(zone string, s Severity) string {
	switch s {
	case SeverityLow:
		return fmt.Sprintf("Minor pressure deviation in %s, monitoring active.", zone)
	case SeverityMedium:
		return fmt.Sprintf("Moderate pressure drop in %s, inspection recommended.", zone)
	case SeverityHigh:
		return fmt.Sprintf("Significant pressure drop in %s, immediate inspection required.", zone)
	case SeverityCritical:
		return fmt.Sprintf("Critical pressure loss in %s, emergency procedure activated.", zone)
	default:
		return fmt.Sprintf("Abnormal pressure detected in %s.", zone)
	}
}

// householdFlowRate is the peak draw of one residential connection in m³/h.
const householdFlowRate = 25.0

// EstimateAffectedCustomers approximates how many connections sit behind a
// zone's regulating station from its current flow rate.
func EstimateAffectedCustomers(flowRate float64) int {
	if flowRate <= 0 || !finite(flowRate) {
		return 0
	}
	return int(math.Ceil(flowRate / householdFlowRate))
}
