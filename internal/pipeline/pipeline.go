package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
	"github.com/couchcryptid/vehicle-incident-etl/internal/observability"
)

// Extractor blocks until the next raw message arrives from the delivery source.
type Extractor interface {
	Extract(ctx context.Context) (domain.RawEvent, error)
}

// Transformer validates and enriches a raw message into a record.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.EnrichedRecord, error)
}

// Loader writes one record to its partition.
type Loader interface {
	Put(ctx context.Context, partition domain.Partition, rec domain.EnrichedRecord) error
}

// Pinger is implemented by loaders that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pipeline runs the validate-enrich-persist loop, one message at a time.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	running     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil while the loop is running and the loader answers a ping.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.running.Load() {
		return errors.New("pipeline is not running")
	}
	if pinger, ok := p.loader.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("store unavailable: %w", err)
		}
	}
	return nil
}

// Run consumes messages until the context is cancelled. A message that has
// started processing is finished before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	// Exponential backoff on extract failures: start at 200ms, double, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processNext(ctx, &backoff, maxBackoff) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// processNext extracts and ingests one message. Returns false if the pipeline should stop.
func (p *Pipeline) processNext(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	raw, err := p.extractor.Extract(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.MessagesConsumed.Inc()
	*backoff = 200 * time.Millisecond

	p.Ingest(context.WithoutCancel(ctx), raw)
	return true
}

// Ingest validates, enriches, and persists one message, then commits it.
// Rejections and store failures are logged and counted; nothing is returned
// to the caller and nothing is retried.
func (p *Pipeline) Ingest(ctx context.Context, raw domain.RawEvent) {
	start := time.Now()
	defer p.commitOffset(ctx, raw)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing message",
				"panic", r,
				"key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
		}
	}()

	rec, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		reason := domain.RejectReason(err)
		p.logger.Warn("message rejected",
			"reason", reason,
			"error", err,
			"key", string(raw.Key),
			"source", raw.Headers[domain.SourceHeader],
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.MessagesRejected.WithLabelValues(reason).Inc()
		return
	}

	partition := rec.Type.Partition()
	if err := p.loader.Put(ctx, partition, rec); err != nil {
		p.logger.Error("store write failed, dropping record",
			"error", err,
			"id", rec.ID,
			"car_id", rec.CarID,
			"partition", partition,
		)
		p.metrics.StoreErrors.Inc()
		return
	}

	p.metrics.RecordsStored.WithLabelValues(string(partition)).Inc()
	p.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	p.logger.Debug("record stored",
		"id", rec.ID,
		"car_id", rec.CarID,
		"partition", partition,
		"nearest_hospital", rec.NearestHospital,
	)
}

// backoffOrStop sleeps with the current backoff and advances it. Returns false
// if the context ended first.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
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
