// Package pipeline moves committed resolutions from the request path to the
// record sink. Sessions enqueue without blocking; a single loop drains the
// queue in batches and retries failed writes with exponential backoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// ErrQueueFull is returned by Publish when the buffer has no room.
var ErrQueueFull = errors.New("publish queue full")

// BatchLoader writes multiple resolutions to the destination.
type BatchLoader interface {
	PublishBatch(ctx context.Context, batch []valuation.Resolution) error
}

// Pipeline buffers committed resolutions and writes them to a BatchLoader.
// It implements valuation.Publisher.
type Pipeline struct {
	loader    BatchLoader
	queue     chan valuation.Resolution
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
	running   atomic.Bool
	done      chan struct{}
}

// New creates a Pipeline buffering up to queueSize resolutions and writing at
// most batchSize per call.
func New(l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, queueSize, batchSize int) *Pipeline {
	if queueSize < 1 {
		queueSize = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Pipeline{
		loader:    l,
		queue:     make(chan valuation.Resolution, queueSize),
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// Publish enqueues res without blocking. A full queue drops the resolution and
// returns ErrQueueFull; the interaction itself still succeeds.
func (p *Pipeline) Publish(_ context.Context, res valuation.Resolution) error {
	select {
	case p.queue <- res:
		p.metrics.PublishQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// CheckReadiness returns an error while the publish loop is not running.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("publish loop is not running")
	}
	return nil
}

// Start runs the publish loop in the background until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := p.Run(ctx); err != nil {
			p.logger.Error("publish loop error", "error", err)
		}
	}()
}

// Close waits for the loop started by Start to return, then flushes what is
// still queued, including a batch the loop gave back when it was cancelled
// mid-write. Cancel the Start context first; Close gives up when ctx expires.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.done != nil {
		select {
		case <-p.done:
		case <-ctx.Done():
			return fmt.Errorf("publish loop did not stop: %w", ctx.Err())
		}
	}
	return p.Flush(ctx)
}

// Run drains the queue until ctx is cancelled. Call Flush afterwards, once Run
// has returned, to write what is still buffered.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("publish loop started", "batch_size", p.batchSize, "queue_size", cap(p.queue))
	p.running.Store(true)
	p.metrics.PublisherRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PublisherRunning.Set(0)
	}()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		var first valuation.Resolution
		select {
		case <-ctx.Done():
			p.logger.Info("publish loop stopping", "reason", ctx.Err(), "pending", len(p.queue))
			return nil
		case first = <-p.queue:
		}

		batch := p.collect(first)
		for !p.load(ctx, batch) {
			if !retry.SleepWithContext(ctx, backoff) {
				p.requeue(batch)
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}
		backoff = 200 * time.Millisecond
	}
}

// Flush writes everything still queued, giving up when ctx expires.
func (p *Pipeline) Flush(ctx context.Context) error {
	for {
		var first valuation.Resolution
		select {
		case first = <-p.queue:
		default:
			return nil
		}
		batch := p.collect(first)
		if !p.load(ctx, batch) {
			p.metrics.PublishErrors.Add(float64(len(batch) + len(p.queue)))
			return errors.New("flush publish queue: write failed")
		}
	}
}

// collect takes first plus whatever else is already queued, up to batchSize.
func (p *Pipeline) collect(first valuation.Resolution) []valuation.Resolution {
	batch := make([]valuation.Resolution, 1, p.batchSize)
	batch[0] = first
	for len(batch) < p.batchSize {
		select {
		case res := <-p.queue:
			batch = append(batch, res)
		default:
			p.metrics.PublishQueueDepth.Sub(float64(len(batch)))
			return batch
		}
	}
	p.metrics.PublishQueueDepth.Sub(float64(len(batch)))
	return batch
}

func (p *Pipeline) load(ctx context.Context, batch []valuation.Resolution) bool {
	if err := p.loader.PublishBatch(ctx, batch); err != nil {
		p.logger.Error("publish batch failed", "error", err, "batch_size", len(batch))
		p.metrics.PublishErrors.Inc()
		return false
	}
	p.metrics.PublishBatchSize.Observe(float64(len(batch)))
	p.metrics.RecordsPublished.Add(float64(len(batch)))
	return true
}

// requeue puts an unwritten batch back so Flush can retry it. Entries that no
// longer fit are dropped.
func (p *Pipeline) requeue(batch []valuation.Resolution) {
	for _, res := range batch {
		if err := p.Publish(context.Background(), res); err != nil {
			p.metrics.PublishErrors.Inc()
			p.logger.Warn("dropping unpublished resolution", "resolution_id", res.ID)
		}
	}
}
