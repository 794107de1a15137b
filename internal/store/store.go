// Package store defines the polymorphic Job Store contract (spec.md §4.1):
// durable CRUD plus atomic claim plus recovery scan, implemented by
// memstore.Store (in-process) and redisstore.Store (distributed).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
)

// Store is the capability set every Job Store variant must implement.
type Store interface {
	// CreateJob fails with errs.KindDuplicate if id already exists.
	CreateJob(ctx context.Context, j *job.Job) error

	// GetJobByID fails with errs.KindNotFound if absent.
	GetJobByID(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// UpdateJob replaces the record and refreshes the ready index.
	UpdateJob(ctx context.Context, j *job.Job) error

	// GetJobsByStatus performs a bounded scan.
	GetJobsByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error)

	// ClaimNextAvailableJob atomically claims the earliest eligible job, or
	// returns (nil, nil) if none is available.
	ClaimNextAvailableJob(ctx context.Context, workerID uuid.UUID) (*job.Job, error)

	// RecoverStuckJobs resets orphaned InProgress jobs per spec.md §4.1.
	// Implementations that don't support recovery return
	// errs.KindInvalid ("recovery not supported").
	RecoverStuckJobs(ctx context.Context, timeoutInstant time.Time, maxRetries int, retryBaseSeconds int) (int, error)

	// SupportsRecovery gates the Distributed Recovery service.
	SupportsRecovery() bool
}

// Sentinel constructors for the error kinds a Store may surface.
func ErrDuplicate(id uuid.UUID) error {
	return errs.New(errs.KindDuplicate, "job already exists: "+id.String())
}

func ErrNotFound(id uuid.UUID) error {
	return errs.New(errs.KindNotFound, "job not found: "+id.String())
}

func ErrInvalid(msg string) error {
	return errs.New(errs.KindInvalid, msg)
}

func ErrStorageUnavailable(err error) error {
	return errs.Wrap(errs.KindStorageUnavailable, "storage unavailable", err)
}

// ErrRecoveryUnsupported is returned by RecoverStuckJobs on stores whose
// SupportsRecovery is false.
var ErrRecoveryUnsupported = ErrInvalid("recovery not supported by this store")
