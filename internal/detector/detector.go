// Package detector turns low-pressure readings into leak alerts.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

// ReadingSource provides a snapshot of current zone readings.
type ReadingSource interface {
	All() []domain.Reading
}

// AlertSink atomically stores an alert unless its zone already has an
// unresolved one.
type AlertSink interface {
	InsertIfNoActive(ctx context.Context, alert domain.Alert) (domain.Alert, bool, error)
}

// Publisher receives events for committed registry mutations.
type Publisher interface {
	Publish(ctx context.Context, event domain.AlertEvent)
}

// Policy holds the detection thresholds of a gas network.
type Policy struct {
	Band            domain.Band
	NominalPressure float64
	NominalFlowRate float64
}

// DefaultPolicy matches the reference distribution network.
var DefaultPolicy = Policy{
	Band:            domain.DefaultBand,
	NominalPressure: 4.0,
	NominalFlowRate: 1000,
}

// Detector scans readings for pressure loss.
type Detector struct {
	readings ReadingSource
	alerts   AlertSink
	events   Publisher
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Detector. now stamps published events.
func New(readings ReadingSource, alerts AlertSink, events Publisher, policy Policy, now func() time.Time, logger *slog.Logger, metrics *observability.Metrics) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		readings: readings,
		alerts:   alerts,
		events:   events,
		policy:   policy,
		now:      now,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckForLeaks scans every zone once and reports whether a new alert was
// created. A failing zone is logged and skipped. Registry failures are
// returned joined after the scan completes; cancellation of ctx stops the
// scan early and returns ctx.Err().
func (d *Detector) CheckForLeaks(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		d.metrics.ScansTotal.Inc()
		d.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		createdAny bool
		sinkErrs   []error
	)
	for _, r := range d.readings.All() {
		if err := ctx.Err(); err != nil {
			return createdAny, err
		}

		alert, created, err := d.checkZone(ctx, r)
		if err != nil {
			d.metrics.ZoneScanErrors.Inc()
			if ctx.Err() != nil {
				return createdAny, ctx.Err()
			}
			d.logger.Warn("zone scan failed, skipping zone", "zone", r.ZoneID, "error", err)
			if !domain.IsValidationError(err) {
				sinkErrs = append(sinkErrs, err)
			}
			continue
		}
		if !created {
			continue
		}

		createdAny = true
		d.metrics.AlertsCreated.WithLabelValues(alert.Severity.String()).Inc()
		d.logger.Info("leak alert created",
			"alert_id", alert.ID,
			"zone", alert.ZoneID,
			"severity", alert.Severity.String(),
			"pressure_drop", alert.PressureDrop,
			"flow_rate_anomaly", alert.FlowRateAnomaly,
		)
		d.events.Publish(ctx, domain.AlertEvent{
			Type:       domain.AlertCreated,
			Alert:      alert,
			OccurredAt: d.now(),
		})
	}

	return createdAny, errors.Join(sinkErrs...)
}

// checkZone evaluates one reading. created is false when the zone is healthy
// or already has an unresolved alert.
func (d *Detector) checkZone(ctx context.Context, r domain.Reading) (alert domain.Alert, created bool, err error) {
	if err := domain.ValidateReading(r); err != nil {
		return domain.Alert{}, false, fmt.Errorf("zone %q: %w", r.ZoneID, err)
	}
	if r.Pressure >= d.policy.Band.Low {
		return domain.Alert{}, false, nil
	}

	candidate := d.Evaluate(r)
	alert, created, err = d.alerts.InsertIfNoActive(ctx, candidate)
	if err != nil {
		return domain.Alert{}, false, fmt.Errorf("zone %q: insert alert: %w", r.ZoneID, err)
	}
	return alert, created, nil
}

// Evaluate builds the alert a low-pressure reading would raise, without
// storing it.
func (d *Detector) Evaluate(r domain.Reading) domain.Alert {
	drop := math.Max(0, d.policy.NominalPressure-r.Pressure)
	flowAnomaly := math.Max(0, r.FlowRate-d.policy.NominalFlowRate)
	severity := domain.Classify(drop)

	return domain.Alert{
		ZoneID:            r.ZoneID,
		PressureDrop:      drop,
		FlowRateAnomaly:   flowAnomaly,
		Severity:          severity,
		Description:       domain.Describe(r.ZoneID, severity),
		AffectedCustomers: domain.EstimateAffectedCustomers(r.FlowRate),
	}
}
