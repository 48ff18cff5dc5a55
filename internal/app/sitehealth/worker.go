package sitehealth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// BatchProcessor processes one continuation.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, runID uuid.UUID, offset int) error
}

// WorkerConfig tunes the continuation worker.
type WorkerConfig struct {
	PollInterval time.Duration
	// Lease is how long a claimed continuation stays invisible to other
	// workers. It must exceed the worst-case batch duration.
	Lease time.Duration
}

// DefaultWorkerConfig polls every second and leases entries for 15 minutes.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{PollInterval: time.Second, Lease: 15 * time.Minute}
}

// Worker claims due continuations and hands them to a BatchProcessor.
type Worker struct {
	cfg       WorkerConfig
	queue     domain.ContinuationQueue
	processor BatchProcessor

	timeProvider timeProvider
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewWorker creates a Worker.
func NewWorker(
	cfg WorkerConfig,
	queue domain.ContinuationQueue,
	processor BatchProcessor,
	log *logger.Logger,
	tracer trace.Tracer,
) *Worker {
	def := DefaultWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	return &Worker{
		cfg:          cfg,
		queue:        queue,
		processor:    processor,
		timeProvider: realTimeProvider{},
		logger:       log.With("component", "continuation_worker"),
		tracer:       tracer,
	}
}

// Run processes continuations until ctx is canceled. Due entries are drained
// back to back; the poll interval only applies when the queue is idle.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info(ctx, "continuation worker started", "poll_interval", w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.processNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error(ctx, "continuation processing failed", "error", err)
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "continuation worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// processNext claims and processes at most one continuation. It reports
// whether an entry was claimed.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	c, err := w.queue.Claim(ctx, w.timeProvider.Now(), w.cfg.Lease)
	if errors.Is(err, domain.ErrNoContinuation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ctx, span := w.tracer.Start(ctx, "worker.sitehealth.process_continuation",
		trace.WithAttributes(
			attribute.String("run_id", c.RunID.String()),
			attribute.Int("offset", c.Offset),
			attribute.Int("attempts", c.Attempts),
		))
	defer span.End()

	err = w.processor.ProcessBatch(ctx, c.RunID, c.Offset)
	switch {
	case err == nil, errors.Is(err, domain.ErrRunSuperseded):
		if ackErr := w.queue.Ack(ctx, c.RunID, c.Offset); ackErr != nil {
			span.RecordError(ackErr)
			return true, ackErr
		}
		span.SetStatus(codes.Ok, "continuation processed")
		return true, nil
	default:
		// The lease is left to expire so another claim retries the batch.
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		return true, err
	}
}
