package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into a zone reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Reading, error)
}

// Loader stores a batch of readings.
type Loader interface {
	Ingest(ctx context.Context, readings []domain.Reading) error
}

// Pipeline orchestrates the extract-transform-load loop that feeds sensor
// readings into the monitor.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	backoff     backoff.BackOff
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		backoff:     newBackOff(),
	}
}

// newBackOff starts at 200ms, doubles each retry and caps at 5s. It never
// gives up; the run context bounds retries.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// CheckReadiness returns nil if the pipeline has loaded at least one reading,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any readings yet")
	}
	return nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context) bool {
	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	p.backoff.Reset()

	loaded, ok := p.transformAndLoad(ctx, rawBatch)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad parses each message in the batch, loads the valid readings,
// and commits offsets. Messages that can never be parsed are committed and
// counted so they do not block the partition. Returns the number of loaded
// readings and false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent) (int, bool) {
	readings := make([]domain.Reading, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		r, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ReadingsRejected.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		readings = append(readings, r)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(readings) == 0 {
		return 0, true
	}

	if err := p.loader.Ingest(ctx, readings); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(readings))
		return 0, p.backoffOrStop(ctx)
	}

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}

	return len(readings), true
}

// backoffOrStop checks for context cancellation and sleeps for the next
// backoff interval. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	d := p.backoff.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	return sleepWithContext(ctx, d)
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
