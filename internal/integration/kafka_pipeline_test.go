//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/gas-leak-monitor/internal/config"
	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/monitor"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
	"github.com/couchcryptid/gas-leak-monitor/internal/pipeline"
)

const (
	testReadingsTopic = "test-readings"
	testAlertsTopic   = "test-alerts"
)

var fixtureTime = time.Date(2024, time.November, 4, 9, 0, 0, 0, time.UTC)

// alertMessage holds a deserialized message read from the alerts topic.
type alertMessage struct {
	Event   domain.AlertEvent
	Key     string
	Headers map[string]string
}

// readAlert reads a single message from the alerts consumer and deserializes it.
func readAlert(ctx context.Context, t *testing.T, consumer *kafkago.Reader) alertMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alerts topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal alert message")

	return alertMessage{
		Event:   event,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReadingsTopic: testReadingsTopic,
		KafkaAlertsTopic:   testAlertsTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func alertsConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertsTopic,
		GroupID:     fmt.Sprintf("test-alerts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func publishReadings(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testReadingsTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader hands out a
// committable raw reading and kafka.Writer publishes alert events keyed by zone.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testAlertsTopic)

	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"flow_rate":1150,"pressure":3.2,"temperature":12.1,"total_consumption":58920,"timestamp":"2024-11-04T09:00:00Z"}`)
	publishReadings(ctx, t, broker, kafkago.Message{Key: []byte("Tongelre"), Value: payload, Time: fixtureTime})

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from readings topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("Tongelre"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testReadingsTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	// The zone is taken from the message key.
	reading, err := pipeline.NewTransformer().Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "Tongelre", reading.ZoneID)
	assert.InDelta(t, 3.2, reading.Pressure, 1e-9)

	det := detector.New(nil, nil, nil, detector.DefaultPolicy, nil, discardLogger(), nil)
	alert := det.Evaluate(reading)
	alert.ID = "alert-1"
	alert.DetectedAt = fixtureTime

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Notify(ctx, domain.AlertEvent{
		Type:       domain.AlertCreated,
		Alert:      alert,
		OccurredAt: fixtureTime,
	}))

	am := readAlert(ctx, t, alertsConsumer(t, broker))
	assert.Equal(t, "Tongelre", am.Key)
	assert.Equal(t, string(domain.AlertCreated), am.Headers["event_type"])
	assert.Equal(t, "high", am.Headers["severity"])
	_, err = time.Parse(time.RFC3339, am.Headers["occurred_at"])
	assert.NoError(t, err, "occurred_at should be valid RFC3339")

	assert.Equal(t, "alert-1", am.Event.Alert.ID)
	assert.Equal(t, domain.SeverityHigh, am.Event.Alert.Severity)
	assert.InDelta(t, 0.8, am.Event.Alert.PressureDrop, 1e-9)
	assert.InDelta(t, 150, am.Event.Alert.FlowRateAnomaly, 1e-9)
}

// TestPipelineEndToEnd wires Reader -> Transformer -> monitor with real Kafka,
// scans the ingested fixture and verifies the alert reaches the alerts topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	createTopic(t, broker, testAlertsTopic)

	cfg := testConfig(broker, "test-pipeline")

	records := loadMockData(t)
	msgs := make([]kafkago.Message, 0, len(records))
	for i, rec := range records {
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(fmt.Sprintf("record-%d", i)),
			Value: rec,
			Time:  fixtureTime,
		})
	}
	publishReadings(ctx, t, broker, msgs...)

	metrics := observability.NewMetricsForTesting()
	svc := monitor.New(detector.DefaultPolicy, discardLogger(), metrics)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	svc.Subscribe("kafka", writer)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(), svc, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		return svc.Summary().ZoneCount == len(records)
	}, 60*time.Second, 200*time.Millisecond, "all zones ingested")

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.InDelta(t, 411485, svc.GetTotalConsumption(), 1e-6)

	created, err := svc.CheckForLeaks(ctx)
	require.NoError(t, err)
	require.True(t, created)

	consumer := alertsConsumer(t, broker)
	am := readAlert(ctx, t, consumer)
	assert.Equal(t, "Tongelre", am.Key)
	assert.Equal(t, domain.AlertCreated, am.Event.Type)
	assert.Equal(t, domain.SeverityHigh, am.Event.Alert.Severity)
	assert.Equal(t, 46, am.Event.Alert.AffectedCustomers)

	// Resolving publishes alert.resolved on the same key.
	ok, err := svc.ResolveAlert(ctx, am.Event.Alert.ID)
	require.NoError(t, err)
	require.True(t, ok)

	am = readAlert(ctx, t, consumer)
	assert.Equal(t, "Tongelre", am.Key)
	assert.Equal(t, domain.AlertResolved, am.Event.Type)
	assert.True(t, am.Event.Alert.IsResolved)
}

// TestPipelinePoisonMessage verifies that an undecodable reading is skipped
// and the pipeline keeps ingesting valid readings.
func TestPipelinePoisonMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)

	cfg := testConfig(broker, "test-poison")

	records := loadMockData(t)
	publishReadings(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: fixtureTime},
		kafkago.Message{Key: []byte("good"), Value: records[0], Time: fixtureTime},
	)

	svc := monitor.New(detector.DefaultPolicy, discardLogger(), observability.NewMetricsForTesting())

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(), svc, discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		return svc.Summary().ZoneCount == 1
	}, 60*time.Second, 200*time.Millisecond, "valid reading ingested")

	pipelineCancel()
	require.NoError(t, <-errCh)

	usage := svc.GetAllCurrentUsage()
	require.Len(t, usage, 1)
	assert.Equal(t, "Strijp", usage[0].ZoneID)
}
