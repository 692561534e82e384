package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks alerts by risk. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityInfo:     "info",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the lowercase names produced by String, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return 0, &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown value %q", name)}
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityInfo || s > SeverityCritical {
		return nil, &ValidationError{Field: "severity", Reason: fmt.Sprintf("out of range: %d", int(s))}
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Alert is a suspected leak in one zone.
type Alert struct {
	ID                string     `json:"id"`
	ZoneID            string     `json:"zone_id"`
	PressureDrop      float64    `json:"pressure_drop"`
	FlowRateAnomaly   float64    `json:"flow_rate_anomaly"`
	Severity          Severity   `json:"severity"`
	DetectedAt        time.Time  `json:"detected_at"`
	IsResolved        bool       `json:"is_resolved"`
	ResolvedAt        *time.Time `json:"resolved_at"`
	Description       string     `json:"description,omitempty"`
	AffectedCustomers int        `json:"affected_customers"`
}

// Clone returns a copy that shares no memory with a.
func (a Alert) Clone() Alert {
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		a.ResolvedAt = &t
	}
	return a
}

// ValidateAlert checks the fields the registry relies on.
func ValidateAlert(a Alert) error {
	if strings.TrimSpace(a.ZoneID) == "" {
		return &ValidationError{Field: "zone_id", Reason: "must not be empty"}
	}
	if !finite(a.PressureDrop) || a.PressureDrop < 0 {
		return &ValidationError{Field: "pressure_drop", Reason: "must be a non-negative number"}
	}
	if !finite(a.FlowRateAnomaly) || a.FlowRateAnomaly < 0 {
		return &ValidationError{Field: "flow_rate_anomaly", Reason: "must be a non-negative number"}
	}
	if a.Severity < SeverityInfo || a.Severity > SeverityCritical {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("out of range: %d", int(a.Severity))}
	}
	if a.AffectedCustomers < 0 {
		return &ValidationError{Field: "affected_customers", Reason: "must not be negative"}
	}
	return nil
}
