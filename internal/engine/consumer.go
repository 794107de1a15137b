package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
)

// ConsumerPool is the Consumer Pool (spec.md §4.3.6): MaximumConcurrency
// logical workers ranging over the shared channel, each bounded by a
// counting semaphore sized MaximumConcurrency, matching "N cooperating
// workers ... bounded by a semaphore" literally rather than relying on
// goroutine count alone — grounded on utkarshgupta137-indigo's backfill
// worker use of golang.org/x/sync/semaphore.Weighted.
type ConsumerPool struct {
	ch            <-chan *job.Job
	processor     *Processor
	concurrency   int64
	sem           *semaphore.Weighted
	logger        logging.StructuredLogger
	wg            sync.WaitGroup
}

// NewConsumerPool builds a ConsumerPool reading from ch.
func NewConsumerPool(ch <-chan *job.Job, processor *Processor, maximumConcurrency int, logger logging.StructuredLogger) *ConsumerPool {
	if logger == nil {
		logger = logging.NoOp{}
	}
	if maximumConcurrency < 1 {
		maximumConcurrency = 1
	}
	return &ConsumerPool{
		ch:          ch,
		processor:   processor,
		concurrency: int64(maximumConcurrency),
		sem:         semaphore.NewWeighted(int64(maximumConcurrency)),
		logger:      logger,
	}
}

// Run spawns MaximumConcurrency worker goroutines, each ranging over the
// channel until it is closed (spec.md's "on channel closure, exit
// cleanly"). Run blocks until every worker has returned.
func (cp *ConsumerPool) Run(ctx context.Context) {
	for i := int64(0); i < cp.concurrency; i++ {
		cp.wg.Add(1)
		go cp.worker(ctx)
	}
	cp.wg.Wait()
}

func (cp *ConsumerPool) worker(ctx context.Context) {
	defer cp.wg.Done()

	for j := range cp.ch {
		if err := cp.sem.Acquire(ctx, 1); err != nil {
			// Context canceled while waiting for a permit; the job stays
			// InProgress in the store for Recovery to reclaim.
			cp.logger.Warn("consumer.acquire_canceled", "job_id", j.ID.String())
			continue
		}

		cp.process(ctx, j)
	}
}

func (cp *ConsumerPool) process(ctx context.Context, j *job.Job) {
	defer cp.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			cp.logger.Error("consumer.handler_panic", "job_id", j.ID.String(), "panic", r)
		}
	}()

	cp.processor.Process(ctx, j)
}

// Wait blocks until all consumer goroutines have returned, used by
// cmd/server's shutdown sequence to bound how long it waits for in-flight
// permits to drain.
func (cp *ConsumerPool) Wait() {
	cp.wg.Wait()
}
