package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

type fakeReadings []domain.Reading

func (f fakeReadings) All() []domain.Reading { return f }

type fakeAlerts []domain.Alert

func (f fakeAlerts) ListActive() []domain.Alert { return f }

func alertsOf(sevs ...domain.Severity) []domain.Alert {
	out := make([]domain.Alert, len(sevs))
	for i, s := range sevs {
		out[i] = domain.Alert{ZoneID: "zone", Severity: s}
	}
	return out
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		active []domain.Alert
		want   Status
	}{
		{"no alerts", nil, StatusNormal},
		{"low only", alertsOf(domain.SeverityLow), StatusWarning},
		{"low and medium", alertsOf(domain.SeverityLow, domain.SeverityMedium), StatusWarning},
		{"high", alertsOf(domain.SeverityHigh), StatusHighAlert},
		{"high beats medium", alertsOf(domain.SeverityMedium, domain.SeverityHigh), StatusHighAlert},
		{"critical beats low", alertsOf(domain.SeverityLow, domain.SeverityCritical), StatusCritical},
		{"critical beats high", alertsOf(domain.SeverityHigh, domain.SeverityCritical, domain.SeverityLow), StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.active))
		})
	}
}

func TestAggregator_Summary(t *testing.T) {
	readings := fakeReadings{
		{ZoneID: "Gestel", TotalConsumption: 41000.5, IsNormal: true},
		{ZoneID: "Strijp", TotalConsumption: 52000, IsNormal: true},
		{ZoneID: "Tongelre", TotalConsumption: 38000, IsNormal: false},
	}
	agg := New(readings, fakeAlerts(alertsOf(domain.SeverityHigh)))

	assert.InDelta(t, 131000.5, agg.TotalConsumption(), 1e-9)
	assert.Equal(t, 1, agg.ActiveAlertCount())
	assert.Equal(t, StatusHighAlert, agg.OverallStatus())
	assert.Equal(t, Summary{
		TotalConsumption:  131000.5,
		ActiveAlertCount:  1,
		OverallStatus:     StatusHighAlert,
		ZoneCount:         3,
		AbnormalZoneCount: 1,
	}, agg.Summary())
}

func TestAggregator_Empty(t *testing.T) {
	agg := New(fakeReadings{}, fakeAlerts{})

	assert.Equal(t, Summary{OverallStatus: StatusNormal}, agg.Summary())
}
