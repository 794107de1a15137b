// Package recovery implements Distributed Recovery (spec.md §4.6): a
// background task that resets orphaned InProgress jobs, active only when
// the configured store supports it and recovery is explicitly enabled.
package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/logging"
	"github.com/asyncengine/engine/internal/store"
)

// Locker is the single-instance-safety collaborator the Redis store
// implements. Grounded on the teacher's redisReleaseLockScript
// compare-and-delete idiom, reused here in shape for the recovery lock.
type Locker interface {
	AcquireLock(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, nonce string) error
}

// Config bundles the RecoveryConfig values the loop needs.
type Config struct {
	JobTimeout     time.Duration
	CheckInterval  time.Duration
	MaxRetries     int
	RetryBaseSeconds int
}

// Recovery runs the periodic reclaim loop.
type Recovery struct {
	store  store.Store
	locker Locker // nil for stores without distributed safety (eg single in-memory instance)
	clk    clock.Clock
	logger logging.StructuredLogger
	cfg    Config
}

// New builds a Recovery. locker may be nil when the store has no
// multi-instance exposure (the in-memory store, or a single Redis
// instance that the operator accepts the small race window for).
func New(s store.Store, locker Locker, clk clock.Clock, logger logging.StructuredLogger, cfg Config) *Recovery {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Recovery{store: s, locker: locker, clk: clk, logger: logger, cfg: cfg}
}

// Run blocks until ctx is canceled. On each cycle it attempts the
// distributed lock (if a Locker is wired), scans for stuck jobs, and logs
// the recovered count. Errors never stop the loop; after an error the next
// cycle runs after the regular CheckInterval, with no shorter retry delay.
func (r *Recovery) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(r.cfg.CheckInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		r.runOnce(ctx)
	}
}

func (r *Recovery) runOnce(ctx context.Context) {
	if !r.store.SupportsRecovery() {
		return
	}

	if r.locker != nil {
		nonce := uuid.NewString()
		acquired, err := r.locker.AcquireLock(ctx, nonce, r.cfg.CheckInterval)
		if err != nil {
			r.logger.Error("recovery.lock_acquire_failed", logging.ErrAttr(err))
			return
		}
		if !acquired {
			r.logger.Debug("recovery.lock_held_elsewhere")
			return
		}
		defer func() {
			if err := r.locker.ReleaseLock(ctx, nonce); err != nil {
				r.logger.Warn("recovery.lock_release_failed", logging.ErrAttr(err))
			}
		}()
	}

	timeoutInstant := r.clk.Now().Add(-r.cfg.JobTimeout)
	count, err := r.store.RecoverStuckJobs(ctx, timeoutInstant, r.cfg.MaxRetries, r.cfg.RetryBaseSeconds)
	if err != nil {
		r.logger.Error("recovery.scan_failed", logging.ErrAttr(err))
		return
	}
	if count > 0 {
		r.logger.Info("recovery.reclaimed", "count", count)
	}
}
