package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Band is a closed pressure interval [Low, High] in bar.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultBand is the normal operating band of the reference network.
var DefaultBand = Band{Low: 3.5, High: 5.0}

// Contains reports whether p lies inside the band, bounds included.
func (b Band) Contains(p float64) bool {
	return p >= b.Low && p <= b.High
}

// Validate checks that the band is a non-empty finite interval.
func (b Band) Validate() error {
	if !finite(b.Low) || !finite(b.High) {
		return &ValidationError{Field: "band", Reason: "bounds must be finite"}
	}
	if b.Low >= b.High {
		return &ValidationError{Field: "band", Reason: fmt.Sprintf("low %.3f must be below high %.3f", b.Low, b.High)}
	}
	return nil
}

// Reading is the current sensor state of one zone.
type Reading struct {
	ZoneID           string    `json:"zone_id"`
	FlowRate         float64   `json:"flow_rate"`
	Pressure         float64   `json:"pressure"`
	Temperature      float64   `json:"temperature"`
	TotalConsumption float64   `json:"total_consumption"`
	Timestamp        time.Time `json:"timestamp"`
	IsNormal         bool      `json:"is_normal"`
}

// ValidateReading rejects readings that must never reach the store.
func ValidateReading(r Reading) error {
	if strings.TrimSpace(r.ZoneID) == "" {
		return &ValidationError{Field: "zone_id", Reason: "must not be empty"}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"flow_rate", r.FlowRate},
		{"pressure", r.Pressure},
		{"temperature", r.Temperature},
		{"total_consumption", r.TotalConsumption},
	} {
		if !finite(f.value) {
			return &ValidationError{Field: f.name, Reason: "must be a finite number"}
		}
	}
	if r.FlowRate < 0 {
		return &ValidationError{Field: "flow_rate", Reason: fmt.Sprintf("%.3f is negative", r.FlowRate)}
	}
	if r.Pressure < 0 {
		return &ValidationError{Field: "pressure", Reason: fmt.Sprintf("%.3f is negative", r.Pressure)}
	}
	if r.TotalConsumption < 0 {
		return &ValidationError{Field: "total_consumption", Reason: fmt.Sprintf("%.3f is negative", r.TotalConsumption)}
	}
	return nil
}

// rawReading is the wire shape published by the SCADA bridge. Pointers
// distinguish a missing field from an explicit zero.
type rawReading struct {
	ZoneID           string     `json:"zone_id"`
	Zone             string     `json:"zone"` // legacy bridges send "zone"
	FlowRate         *float64   `json:"flow_rate"`
	Pressure         *float64   `json:"pressure"`
	Temperature      *float64   `json:"temperature"`
	TotalConsumption *float64   `json:"total_consumption"`
	Timestamp        *time.Time `json:"timestamp"`
}

// ParseReading decodes a JSON reading payload and validates it. When the
// payload carries no timestamp, fallback is used, and when fallback is zero
// the package clock supplies the time.
func ParseReading(data []byte, fallback time.Time) (Reading, error) {
	r, err := decodeReading(data, fallback)
	if err != nil {
		return Reading{}, err
	}
	if err := ValidateReading(r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// ParseRawEvent decodes a reading carried by a source message. The message
// timestamp stands in for a missing payload timestamp and the message key for
// a missing zone id.
func ParseRawEvent(raw RawEvent) (Reading, error) {
	r, err := decodeReading(raw.Value, raw.Timestamp)
	if err != nil {
		return Reading{}, err
	}
	if r.ZoneID == "" {
		r.ZoneID = strings.TrimSpace(string(raw.Key))
	}
	if err := ValidateReading(r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

func decodeReading(data []byte, fallback time.Time) (Reading, error) {
	var rec rawReading
	if err := json.Unmarshal(data, &rec); err != nil {
		return Reading{}, fmt.Errorf("parse reading: %w", err)
	}

	zone := strings.TrimSpace(rec.ZoneID)
	if zone == "" {
		zone = strings.TrimSpace(rec.Zone)
	}
	if rec.Pressure == nil {
		return Reading{}, &ValidationError{Field: "pressure", Reason: "missing"}
	}
	if rec.FlowRate == nil {
		return Reading{}, &ValidationError{Field: "flow_rate", Reason: "missing"}
	}

	ts := fallback
	if rec.Timestamp != nil && !rec.Timestamp.IsZero() {
		ts = *rec.Timestamp
	}
	if ts.IsZero() {
		ts = clock.Now()
	}

	return Reading{
		ZoneID:           zone,
		FlowRate:         *rec.FlowRate,
		Pressure:         *rec.Pressure,
		Temperature:      valueOrZero(rec.Temperature),
		TotalConsumption: valueOrZero(rec.TotalConsumption),
		Timestamp:        ts.UTC(),
	}, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
