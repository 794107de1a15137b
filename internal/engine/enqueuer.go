package engine

import (
	"context"
	"time"

	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
)

// Enqueuer is the Channel Enqueuer (spec.md §4.3.4): a non-blocking write
// first, falling back to a blocking write bounded by a timeout, modeled on
// the select-default/ctx.Done/time.After idiom used throughout the pack.
type Enqueuer struct {
	ch      chan<- *job.Job
	timeout time.Duration
	logger  logging.StructuredLogger
}

// NewEnqueuer wraps the Producer's write side of the bounded channel.
func NewEnqueuer(ch chan<- *job.Job, timeout time.Duration, logger logging.StructuredLogger) *Enqueuer {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Enqueuer{ch: ch, timeout: timeout, logger: logger}
}

// Enqueue tries a non-blocking send first; on channel-full, it blocks up
// to e.timeout. Returns false (never panics) on timeout, cancellation, or
// a closed channel.
func (e *Enqueuer) Enqueue(ctx context.Context, j *job.Job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			// send on closed channel during shutdown race.
			e.logger.Warn("enqueuer.closed_channel", "job_id", j.ID.String())
			ok = false
		}
	}()

	select {
	case e.ch <- j:
		return true
	default:
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case e.ch <- j:
		return true
	case <-ctx.Done():
		e.logger.Warn("enqueuer.canceled", "job_id", j.ID.String())
		return false
	case <-timer.C:
		e.logger.Warn("enqueuer.timeout", "job_id", j.ID.String())
		return false
	}
}
