// Package aggregate derives city-wide views from the current readings and
// alerts. Nothing is cached; every call reads the latest state.
package aggregate

import (
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// Status is the overall condition of the network.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusWarning   Status = "warning"
	StatusHighAlert Status = "high_alert"
	StatusCritical  Status = "critical"
)

// ReadingSource provides a snapshot of current zone readings.
type ReadingSource interface {
	All() []domain.Reading
}

// AlertSource provides a snapshot of unresolved alerts.
type AlertSource interface {
	ListActive() []domain.Alert
}

// Summary is the dashboard view of the network.
type Summary struct {
	TotalConsumption  float64 `json:"total_consumption"`
	ActiveAlertCount  int     `json:"active_alert_count"`
	OverallStatus     Status  `json:"overall_status"`
	ZoneCount         int     `json:"zone_count"`
	AbnormalZoneCount int     `json:"abnormal_zone_count"`
}

// Aggregator computes totals over a reading source and an alert source.
type Aggregator struct {
	readings ReadingSource
	alerts   AlertSource
}

// New creates an Aggregator.
func New(readings ReadingSource, alerts AlertSource) *Aggregator {
	return &Aggregator{readings: readings, alerts: alerts}
}

// TotalConsumption sums the cumulative consumption of every zone.
func (a *Aggregator) TotalConsumption() float64 {
	return totalConsumption(a.readings.All())
}

// ActiveAlertCount returns the number of unresolved alerts.
func (a *Aggregator) ActiveAlertCount() int {
	return len(a.alerts.ListActive())
}

// OverallStatus derives the network status from the unresolved alerts.
func (a *Aggregator) OverallStatus() Status {
	return StatusOf(a.alerts.ListActive())
}

// Summary bundles all aggregates. Each source is read once so the figures
// are consistent with each other.
func (a *Aggregator) Summary() Summary {
	readings := a.readings.All()
	active := a.alerts.ListActive()

	abnormal := 0
	for _, r := range readings {
		if !r.IsNormal {
			abnormal++
		}
	}

	return Summary{
		TotalConsumption:  totalConsumption(readings),
		ActiveAlertCount:  len(active),
		OverallStatus:     StatusOf(active),
		ZoneCount:         len(readings),
		AbnormalZoneCount: abnormal,
	}
}

// StatusOf applies the priority cascade: any critical alert wins, then any
// high alert, then any alert at all.
func StatusOf(active []domain.Alert) Status {
	var hasCritical, hasHigh bool
	for _, al := range active {
		switch al.Severity {
		case domain.SeverityCritical:
			hasCritical = true
		case domain.SeverityHigh:
			hasHigh = true
		}
	}

	switch {
	case hasCritical:
		return StatusCritical
	case hasHigh:
		return StatusHighAlert
	case len(active) > 0:
		return StatusWarning
	default:
		return StatusNormal
	}
}

func totalConsumption(readings []domain.Reading) float64 {
	var total float64
	for _, r := range readings {
		total += r.TotalConsumption
	}
	return total
}
