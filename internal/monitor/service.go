// Package monitor is the entry point for callers of the leak monitor. It
// wires the reading store, alert registry, detector, dispatcher and
// aggregator together and runs the periodic scan.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gas-leak-monitor/internal/aggregate"
	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/notify"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
	"github.com/couchcryptid/gas-leak-monitor/internal/registry"
	"github.com/couchcryptid/gas-leak-monitor/internal/store"
)

// DefaultScanInterval is used when no interval is configured.
const DefaultScanInterval = 30 * time.Second

type options struct {
	clock        clockwork.Clock
	scanInterval time.Duration
	registryOpts []registry.Option
}

// Option configures a Service.
type Option func(*options)

// WithClock sets the time source for readings, alerts and the scan ticker.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithScanInterval sets the period of the background scan started by Run.
func WithScanInterval(d time.Duration) Option {
	return func(o *options) { o.scanInterval = d }
}

// WithJournal persists every alert mutation through j.
func WithJournal(j registry.Journal) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, registry.WithJournal(j)) }
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, registry.WithIDGenerator(f)) }
}

// Service is safe for concurrent use.
type Service struct {
	store      *store.Store
	registry   *registry.Registry
	dispatcher *notify.Dispatcher
	detector   *detector.Detector
	aggregator *aggregate.Aggregator

	clock        clockwork.Clock
	scanInterval time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
}

// New creates a Service that detects leaks according to policy.
func New(policy detector.Policy, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	o := options{
		clock:        clockwork.NewRealClock(),
		scanInterval: DefaultScanInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	st := store.New(policy.Band, o.clock)
	reg := registry.New(append([]registry.Option{registry.WithClock(o.clock)}, o.registryOpts...)...)
	disp := notify.New(logger, metrics)

	return &Service{
		store:        st,
		registry:     reg,
		dispatcher:   disp,
		detector:     detector.New(st, reg, disp, policy, o.clock.Now, logger, metrics),
		aggregator:   aggregate.New(st, reg),
		clock:        o.clock,
		scanInterval: o.scanInterval,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckForLeaks runs one detection scan and reports whether a new alert was
// created.
func (s *Service) CheckForLeaks(ctx context.Context) (bool, error) {
	created, err := s.detector.CheckForLeaks(ctx)
	s.metrics.ActiveAlerts.Set(float64(s.registry.ActiveCount()))
	if err == nil {
		s.ready.Store(true)
	}
	return created, err
}

// GetActiveAlerts returns unresolved alerts, most severe first.
func (s *Service) GetActiveAlerts() []domain.Alert {
	return s.registry.ListActive()
}

// GetAllAlerts returns every alert in insertion order.
func (s *Service) GetAllAlerts() []domain.Alert {
	return s.registry.ListAll()
}

// GetAlert returns a single alert by id.
func (s *Service) GetAlert(id string) (domain.Alert, error) {
	return s.registry.Get(id)
}

// ResolveAlert resolves the alert with the given id. It returns false with
// domain.ErrNotFound or domain.ErrAlreadyResolved when nothing changed.
func (s *Service) ResolveAlert(ctx context.Context, id string) (bool, error) {
	alert, err := s.registry.Resolve(ctx, id)
	if err != nil {
		return false, err
	}

	s.metrics.AlertsResolved.Inc()
	s.metrics.ActiveAlerts.Set(float64(s.registry.ActiveCount()))
	s.logger.Info("leak alert resolved", "alert_id", alert.ID, "zone", alert.ZoneID)

	s.dispatcher.Publish(ctx, domain.AlertEvent{
		Type:       domain.AlertResolved,
		Alert:      alert,
		OccurredAt: s.clock.Now(),
	})
	return true, nil
}

// Restore loads previously journaled alerts into the registry, keeping their
// ids and timestamps. It must run before the first scan.
func (s *Service) Restore(ctx context.Context, alerts []domain.Alert) error {
	for _, a := range alerts {
		if _, err := s.registry.Insert(ctx, a); err != nil {
			return fmt.Errorf("restore alert %s: %w", a.ID, err)
		}
	}
	s.metrics.ActiveAlerts.Set(float64(s.registry.ActiveCount()))
	s.logger.Info("alerts restored", "total", len(alerts), "active", s.registry.ActiveCount())
	return nil
}

// GetAllCurrentUsage returns the latest reading of every zone.
func (s *Service) GetAllCurrentUsage() []domain.Reading {
	return s.store.All()
}

// GetCurrentUsage returns the latest reading of one zone.
func (s *Service) GetCurrentUsage(zoneID string) (domain.Reading, error) {
	return s.store.Get(zoneID)
}

// GetTotalConsumption sums cumulative consumption across zones.
func (s *Service) GetTotalConsumption() float64 {
	return s.aggregator.TotalConsumption()
}

// Summary returns the city-wide overview.
func (s *Service) Summary() aggregate.Summary {
	return s.aggregator.Summary()
}

// Subscribe registers a subscriber for alert events.
func (s *Service) Subscribe(name string, sub notify.Subscriber) (unsubscribe func()) {
	return s.dispatcher.Subscribe(name, sub)
}

// Ingest validates readings and stores them. A batch with any invalid reading
// is rejected as a whole.
func (s *Service) Ingest(ctx context.Context, readings []domain.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, r := range readings {
		if err := domain.ValidateReading(r); err != nil {
			s.metrics.ReadingsRejected.Add(float64(len(readings)))
			return fmt.Errorf("reading %d (zone %q): %w", i, r.ZoneID, err)
		}
	}
	for _, r := range readings {
		s.store.Upsert(r)
	}
	s.metrics.ReadingsIngested.Add(float64(len(readings)))
	return nil
}

// CheckReadiness returns nil once a detection scan has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no leak scan has completed yet")
	}
	return nil
}

// Run scans immediately and then once per scan interval until ctx is
// cancelled. Scan failures are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.scanInterval)
	defer ticker.Stop()

	s.logger.Info("leak monitor started", "scan_interval", s.scanInterval)
	s.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("leak monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.scan(ctx)
		}
	}
}

func (s *Service) scan(ctx context.Context) {
	created, err := s.CheckForLeaks(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("leak scan failed", "error", err)
		return
	}
	if created {
		s.logger.Debug("leak scan created alerts", "active", s.registry.ActiveCount())
	}
}
