package decorator

import (
	"context"
	"sync"
	"time"

	"relay/internal/adapter"
	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/metrics"
	"relay/pkg/models"
)

// Batching buffers accepted items in a bounded in-memory queue and sends
// them in batches. A flush is triggered when the queue reaches MaxSize or
// when the flush timer fires. Items from a failed flush are requeued with
// an incremented attempt count and dropped once they exceed ItemRetryCap.
//
// The queue is process-local; items still buffered when the process dies
// are lost. Durable delivery is explicitly not part of the contract.
type Batching struct {
	inner  adapter.Adapter
	cfg    config.BatchingConfig
	logger logger.Logger

	mu        sync.Mutex
	queue     []adapter.Item
	destroyed bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewBatching(inner adapter.Adapter, cfg config.BatchingConfig, log logger.Logger) *Batching {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = constants.DefaultBatchMaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = constants.DefaultBatchFlushInterval
	}
	if cfg.ItemRetryCap <= 0 {
		cfg.ItemRetryCap = constants.DefaultBatchItemRetryCap
	}

	b := &Batching{
		inner:  inner,
		cfg:    cfg,
		logger: log,
		done:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushLoop()

	return b
}

func (b *Batching) Name() string {
	return b.inner.Name()
}

func (b *Batching) Initialize(ctx context.Context) error {
	return b.inner.Initialize(ctx)
}

func (b *Batching) Track(ctx context.Context, event models.Event) error {
	return b.enqueue(ctx, adapter.TrackItem(event))
}

func (b *Batching) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return b.enqueue(ctx, adapter.IdentifyItem(payload))
}

func (b *Batching) Group(ctx context.Context, payload models.GroupPayload) error {
	return b.enqueue(ctx, adapter.GroupItem(payload))
}

func (b *Batching) Page(ctx context.Context, payload models.PagePayload) error {
	return b.enqueue(ctx, adapter.PageItem(payload))
}

// Flush drains the queue synchronously, then drains the wrapped adapter.
func (b *Batching) Flush(ctx context.Context) error {
	b.flush(ctx, "manual")
	return b.inner.Flush(ctx)
}

// Destroy stops the flush timer, drops any still-buffered items, and
// tears down the wrapped adapter. The decorator is unusable afterwards.
func (b *Batching) Destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	pending := len(b.queue)
	b.queue = nil
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	if pending > 0 {
		metrics.BatchDroppedItemsTotal.WithLabelValues(b.inner.Name()).Add(float64(pending))
		b.logger.WarnwCtx(ctx, "Dropped buffered items on destroy",
			"provider", b.inner.Name(),
			"count", pending,
		)
	}
	metrics.SetBatchQueueSize(b.inner.Name(), 0)

	return b.inner.Destroy(ctx)
}

func (b *Batching) enqueue(ctx context.Context, item adapter.Item) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return errors.ErrInternal.WithDetail("message", "batcher is destroyed").AsFatal()
	}
	b.queue = append(b.queue, item)
	size := len(b.queue)
	b.mu.Unlock()

	metrics.SetBatchQueueSize(b.inner.Name(), size)

	if size >= b.cfg.MaxSize {
		b.flush(ctx, "size")
	}
	return nil
}

func (b *Batching) flushLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush(context.Background(), "timer")
		case <-b.done:
			return
		}
	}
}

// flush sends a snapshot of the current queue. Items buffered while the
// snapshot is in flight stay queued for the next flush.
func (b *Batching) flush(ctx context.Context, trigger string) {
	b.mu.Lock()
	if b.destroyed || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	metrics.SetBatchQueueSize(b.inner.Name(), 0)

	failed := b.send(ctx, batch)

	status := "success"
	if len(failed) > 0 {
		status = "partial_failure"
		b.requeue(ctx, failed)
	}
	metrics.BatchFlushesTotal.WithLabelValues(b.inner.Name(), trigger, status).Inc()

	b.logger.DebugwCtx(ctx, "Batch flushed",
		"provider", b.inner.Name(),
		"trigger", trigger,
		"size", len(batch),
		"failed", len(failed),
	)
}

// send dispatches the batch and returns the items that failed. A native
// batch call is all-or-nothing; per-item fan-out isolates failures.
func (b *Batching) send(ctx context.Context, batch []adapter.Item) []adapter.Item {
	if sender, ok := b.inner.(adapter.BatchSender); ok {
		if err := sender.SendBatch(ctx, batch); err != nil {
			b.logger.WarnwCtx(ctx, "Batch send failed",
				"provider", b.inner.Name(),
				"size", len(batch),
				"error", err,
			)
			return batch
		}
		return nil
	}

	type outcome struct {
		idx int
		err error
	}

	results := make(chan outcome, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(i int, item adapter.Item) {
			defer wg.Done()
			results <- outcome{idx: i, err: adapter.Send(ctx, b.inner, item)}
		}(i, item)
	}
	wg.Wait()
	close(results)

	var failed []adapter.Item
	for r := range results {
		if r.err != nil {
			b.logger.WarnwCtx(ctx, "Batch item failed",
				"provider", b.inner.Name(),
				"operation", batch[r.idx].Operation,
				"error", r.err,
			)
			failed = append(failed, batch[r.idx])
		}
	}
	return failed
}

func (b *Batching) requeue(ctx context.Context, failed []adapter.Item) {
	var keep []adapter.Item
	dropped := 0
	for _, item := range failed {
		item.Attempts++
		if item.Attempts >= b.cfg.ItemRetryCap {
			dropped++
			continue
		}
		keep = append(keep, item)
	}

	if dropped > 0 {
		metrics.BatchDroppedItemsTotal.WithLabelValues(b.inner.Name()).Add(float64(dropped))
		b.logger.WarnwCtx(ctx, "Dropped items after exhausting requeues",
			"provider", b.inner.Name(),
			"count", dropped,
		)
	}
	if len(keep) == 0 {
		return
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		metrics.BatchDroppedItemsTotal.WithLabelValues(b.inner.Name()).Add(float64(len(keep)))
		return
	}
	b.queue = append(keep, b.queue...)
	size := len(b.queue)
	b.mu.Unlock()

	metrics.SetBatchQueueSize(b.inner.Name(), size)
}
