package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/breaker"
	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/gas-leak-monitor/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/gas-leak-monitor/internal/adapter/mqtt"
	natsadapter "github.com/couchcryptid/gas-leak-monitor/internal/adapter/nats"
	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/postgres"
	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/websocket"
	"github.com/couchcryptid/gas-leak-monitor/internal/config"
	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/monitor"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
	"github.com/couchcryptid/gas-leak-monitor/internal/pipeline"
)

func main() {
	envFile := config.LoadEnvFile(config.DefaultEnvFiles...)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	if envFile != "" {
		logger.Info("loaded environment file", "path", envFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := detector.Policy{
		Band:            cfg.PressureBand,
		NominalPressure: cfg.NominalPressure,
		NominalFlowRate: cfg.NominalFlowRate,
	}
	opts := []monitor.Option{monitor.WithScanInterval(cfg.ScanInterval)}

	// Alert journal (enabled via DATABASE_URL).
	var journal *postgres.Journal
	if cfg.DatabaseURL != "" {
		journal, err = postgres.NewJournal(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open alert journal", "error", err)
			os.Exit(1)
		}
		defer journal.Close()
		opts = append(opts, monitor.WithJournal(journal))
		logger.Info("postgres alert journal enabled")
	}

	svc := monitor.New(policy, logger, metrics, opts...)

	if journal != nil {
		history, err := journal.Load(ctx)
		if err != nil {
			logger.Error("failed to load alert history", "error", err)
			os.Exit(1)
		}
		if err := svc.Restore(ctx, history); err != nil {
			logger.Error("failed to restore alert history", "error", err)
			os.Exit(1)
		}
	}

	breakerSettings := breaker.Settings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}

	hub := websocket.NewHub(svc.GetActiveAlerts, logger)
	svc.Subscribe("websocket", hub)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("component stopped with error", "component", name, "error", err)
			}
		}()
	}

	run("websocket hub", func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	})

	// Kafka readings pipeline and alert topic (enabled via KAFKA_ENABLED).
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		svc.Subscribe("kafka", breaker.Wrap("kafka-alerts", writer, breakerSettings, logger))

		p := pipeline.New(reader, pipeline.NewTransformer(), svc, logger, metrics, cfg.BatchSize)
		run("pipeline", p.Run)
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "readings_topic", cfg.KafkaReadingsTopic, "alerts_topic", cfg.KafkaAlertsTopic)
	} else {
		logger.Info("kafka disabled")
	}

	// NATS alert publisher (enabled via NATS_URL).
	if cfg.NATSURL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect nats", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		svc.Subscribe("nats", breaker.Wrap("nats-alerts", pub, breakerSettings, logger))
	}

	// MQTT SCADA bridge (enabled via MQTT_BROKER_URL).
	if cfg.MQTTBrokerURL != "" {
		sub, err := mqttadapter.NewSubscriber(ctx, cfg, svc, logger, metrics)
		if err != nil {
			logger.Error("failed to connect mqtt", "error", err)
			os.Exit(1)
		}
		run("mqtt subscriber", sub.Run)
	}

	run("leak monitor", svc.Run)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, hub, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
