// Package notify fans alert lifecycle events out to subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

// Subscriber receives alert events. Returned errors are logged and counted;
// they never stop delivery to other subscribers.
type Subscriber interface {
	Notify(ctx context.Context, event domain.AlertEvent) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event domain.AlertEvent) error

func (f SubscriberFunc) Notify(ctx context.Context, event domain.AlertEvent) error {
	return f(ctx, event)
}

// DeliveryTimeout bounds one Publish call across all subscribers.
const DeliveryTimeout = 10 * time.Second

type subscription struct {
	id   uint64
	name string
	sub  Subscriber
}

// Dispatcher delivers events to every registered subscriber. Callers must
// only Publish after the mutation that produced the event is visible.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64

	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Dispatcher with no subscribers.
func New(logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		subs:    make(map[uint64]subscription),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers s under name and returns a function that removes it.
// The returned function is safe to call more than once.
func (d *Dispatcher) Subscribe(name string, s Subscriber) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[id] = subscription{id: id, name: name, sub: s}
	d.mu.Unlock()

	d.logger.Debug("subscriber registered", "subscriber", name)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			d.logger.Debug("subscriber removed", "subscriber", name)
		})
	}
}

// Len returns the number of registered subscribers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Publish delivers event to a snapshot of the current subscribers. The
// mutation behind event is already committed, so cancellation of ctx does not
// stop delivery; subscribers see ctx's values under DeliveryTimeout instead.
func (d *Dispatcher) Publish(ctx context.Context, event domain.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DeliveryTimeout)
	defer cancel()

	d.mu.RLock()
	subs := make([]subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, s := range subs {
		if err := deliver(ctx, s.sub, event); err != nil {
			d.logger.Warn("alert notification failed",
				"subscriber", s.name,
				"event", event.Type,
				"alert_id", event.Alert.ID,
				"zone", event.Alert.ZoneID,
				"error", err,
			)
			d.metrics.NotificationsFailed.WithLabelValues(s.name).Inc()
		}
	}
}

// deliver calls the subscriber, converting a panic into an error.
func deliver(ctx context.Context, s Subscriber, event domain.AlertEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return s.Notify(ctx, event)
}
