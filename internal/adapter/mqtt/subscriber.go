// Package mqtt bridges SCADA zone readings published over MQTT into the
// monitor.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/gas-leak-monitor/internal/config"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

const (
	qos            = 1
	connectRetries = 5
)

// Ingester stores parsed readings.
type Ingester interface {
	Ingest(ctx context.Context, readings []domain.Reading) error
}

// Subscriber consumes reading payloads from an MQTT topic filter. A single
// '+' wildcard in the filter marks the topic level holding the zone id.
type Subscriber struct {
	client  pahomqtt.Client
	topic   string
	sink    Ingester
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewSubscriber connects to the configured broker, retrying with exponential
// backoff until ctx is done or the retries are exhausted.
func NewSubscriber(ctx context.Context, cfg *config.Config, sink Ingester, logger *slog.Logger, metrics *observability.Metrics) (*Subscriber, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	client := pahomqtt.NewClient(opts)
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.MQTTBrokerURL, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.MQTTBrokerURL, err)
	}

	logger.Info("connected to mqtt broker", "broker", cfg.MQTTBrokerURL, "topic", cfg.MQTTTopic)
	return newSubscriber(client, cfg.MQTTTopic, sink, logger, metrics), nil
}

func newSubscriber(client pahomqtt.Client, topic string, sink Ingester, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		client:  client,
		topic:   topic,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run subscribes and blocks until ctx is cancelled, then unsubscribes and
// disconnects.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handle(ctx, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
	}
	s.logger.Info("mqtt subscription active", "topic", s.topic)

	<-ctx.Done()

	s.client.Unsubscribe(s.topic).Wait()
	s.client.Disconnect(250)
	s.logger.Info("mqtt subscriber stopped")
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg pahomqtt.Message) {
	raw := domain.RawEvent{
		Key:       []byte(zoneFromTopic(s.topic, msg.Topic())),
		Value:     msg.Payload(),
		Topic:     msg.Topic(),
		Timestamp: s.now(),
	}
	reading, err := domain.ParseRawEvent(raw)
	if err != nil {
		s.metrics.ReadingsRejected.Inc()
		s.logger.Warn("discarding mqtt reading", "topic", msg.Topic(), "error", err)
		return
	}
	if err := s.sink.Ingest(ctx, []domain.Reading{reading}); err != nil {
		s.logger.Error("ingest mqtt reading failed", "zone", reading.ZoneID, "error", err)
	}
}

// zoneFromTopic returns the level of topic matched by the first '+' in
// filter, or "" when the filter has no wildcard or the levels do not line up.
func zoneFromTopic(filter, topic string) string {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")
	for i, level := range filterLevels {
		if level != "+" {
			continue
		}
		if i < len(topicLevels) {
			return topicLevels[i]
		}
		return ""
	}
	return ""
}
