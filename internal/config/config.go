package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Detection policy.
	NominalPressure float64
	NominalFlowRate float64
	PressureBand    domain.Band
	ScanInterval    time.Duration

	// Kafka readings source and alert sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaAlertsTopic   string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Optional collaborators, enabled when their URL is set.
	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
	NATSURL       string
	DatabaseURL   string

	// Circuit breaker around outbound alert publishers.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	scanInterval, err := parsePositiveDuration("SCAN_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	nominalPressure, err := parseFloat("NOMINAL_PRESSURE", 4.0)
	if err != nil {
		return nil, err
	}
	nominalFlow, err := parseFloat("NOMINAL_FLOW_RATE", 1000)
	if err != nil {
		return nil, err
	}
	bandLow, err := parseFloat("PRESSURE_BAND_LOW", domain.DefaultBand.Low)
	if err != nil {
		return nil, err
	}
	bandHigh, err := parseFloat("PRESSURE_BAND_HIGH", domain.DefaultBand.High)
	if err != nil {
		return nil, err
	}

	breakerFailures, err := parsePositiveInt("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := parsePositiveDuration("BREAKER_OPEN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NominalPressure: nominalPressure,
		NominalFlowRate: nominalFlow,
		PressureBand:    domain.Band{Low: bandLow, High: bandHigh},
		ScanInterval:    scanInterval,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReadingsTopic: sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "gas-zone-readings"),
		KafkaAlertsTopic:   sharedcfg.EnvOrDefault("KAFKA_ALERTS_TOPIC", "gas-leak-alerts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "gas-leak-monitor"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTTopic:     sharedcfg.EnvOrDefault("MQTT_TOPIC", "gas/zones/+/reading"),
		MQTTClientID:  sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "gas-leak-monitor"),
		NATSURL:       os.Getenv("NATS_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		BreakerMaxFailures: uint32(breakerFailures),
		BreakerOpenTimeout: breakerTimeout,
	}

	if err := cfg.PressureBand.Validate(); err != nil {
		return nil, fmt.Errorf("PRESSURE_BAND_LOW/PRESSURE_BAND_HIGH: %w", err)
	}
	if cfg.NominalPressure <= 0 {
		return nil, errors.New("NOMINAL_PRESSURE must be positive")
	}
	if cfg.NominalFlowRate < 0 {
		return nil, errors.New("NOMINAL_FLOW_RATE must not be negative")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaReadingsTopic == "" {
			return nil, errors.New("KAFKA_READINGS_TOPIC is required")
		}
		if cfg.KafkaAlertsTopic == "" {
			return nil, errors.New("KAFKA_ALERTS_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: %q is not a finite number", key, s)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
