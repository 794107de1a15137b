// Package manager implements the Job Manager (spec.md §4.2): the only
// component trusted to mutate job state outside of store-internal indexes.
package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
	"github.com/asyncengine/engine/internal/metrics"
	"github.com/asyncengine/engine/internal/store"
)

// SubmitContext carries the per-request context SubmitJob snapshots onto
// the new Job: the idempotency key candidate plus headers/route/query,
// mirrored on spec.md §4.2's "snapshot headers/route/query from context."
type SubmitContext struct {
	RequestID   string
	Headers     map[string][]*string
	RouteParams map[string]string
	QueryParams []job.QueryParam
}

// Manager is the Job Manager.
type Manager struct {
	store      store.Store
	clk        clock.Clock
	logger     logging.StructuredLogger
	metrics    metrics.Recorder
	maxRetries int
	retryBase  int
}

// Config bundles the JobManagerConfig values the Manager needs.
type Config struct {
	DefaultMaxRetries     int
	RetryDelayBaseSeconds int
}

// New builds a Manager over the given store.
func New(s store.Store, clk clock.Clock, logger logging.StructuredLogger, rec metrics.Recorder, cfg Config) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Manager{
		store:      s,
		clk:        clk,
		logger:     logger,
		metrics:    rec,
		maxRetries: cfg.DefaultMaxRetries,
		retryBase:  cfg.RetryDelayBaseSeconds,
	}
}

// SubmitJob derives an id from sc.RequestID (falling back to a generated
// one), returns the existing job unchanged if one already exists under
// that id, and otherwise creates a new Queued job.
func (m *Manager) SubmitJob(ctx context.Context, jobName string, payload string, sc SubmitContext) (*job.Job, error) {
	id, err := resolveID(sc.RequestID)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalid, "X-Request-ID must be a well-formed id", err)
	}

	existing, err := m.store.GetJobByID(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}

	now := m.clk.Now()
	j := &job.Job{
		ID:            id,
		Name:          jobName,
		Status:        job.StatusQueued,
		Headers:       sc.Headers,
		RouteParams:   sc.RouteParams,
		QueryParams:   sc.QueryParams,
		Payload:       payload,
		RetryCount:    0,
		MaxRetries:    m.maxRetries,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	if err := m.store.CreateJob(ctx, j); err != nil {
		if errs.Is(err, errs.KindDuplicate) {
			winner, getErr := m.store.GetJobByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return winner, nil
		}
		return nil, err
	}

	m.metrics.RecordJobCreated(jobName)
	return j, nil
}

// ClaimNextAvailableJob delegates to the store with no added business
// rules, per spec.md §4.2.
func (m *Manager) ClaimNextAvailableJob(ctx context.Context, workerID uuid.UUID) (*job.Job, error) {
	j, err := m.store.ClaimNextAvailableJob(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if j != nil {
		m.metrics.RecordJobClaimed(j.Name)
	}
	return j, nil
}

// ClaimJobsForProcessing is the legacy batch shape spec.md §4.2 retains for
// store compatibility; the Producer itself uses the single-claim variant.
func (m *Manager) ClaimJobsForProcessing(ctx context.Context, workerID uuid.UUID, batchSize int) ([]*job.Job, error) {
	out := make([]*job.Job, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		j, err := m.ClaimNextAvailableJob(ctx, workerID)
		if err != nil {
			return out, err
		}
		if j == nil {
			break
		}
		out = append(out, j)
	}
	return out, nil
}

// ProcessJobSuccess transitions an InProgress job to Completed.
func (m *Manager) ProcessJobSuccess(ctx context.Context, id uuid.UUID, result string) error {
	j, err := m.store.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != job.StatusInProgress {
		return errs.New(errs.KindInvalid, "job is not InProgress: "+id.String())
	}

	now := m.clk.Now()
	j.Status = job.StatusCompleted
	j.Result = &result
	j.CompletedAt = &now
	j.LastUpdatedAt = now

	if err := m.store.UpdateJob(ctx, j); err != nil {
		return err
	}
	m.metrics.RecordJobProcessed(j.Name, true)
	return nil
}

// ProcessJobFailure transitions an InProgress job either back to Scheduled
// (with incremented retryCount and back-off) or to terminal Failed once
// the retry cap is reached.
func (m *Manager) ProcessJobFailure(ctx context.Context, id uuid.UUID, jobErr *job.Error) error {
	j, err := m.store.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != job.StatusInProgress {
		return errs.New(errs.KindInvalid, "job is not InProgress: "+id.String())
	}

	now := m.clk.Now()
	j.Err = jobErr
	j.LastUpdatedAt = now

	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		delay := backoffSeconds(j.RetryCount, m.retryBase)
		until := now.Add(time.Duration(delay) * time.Second)
		j.RetryDelayUntil = &until
		j.Status = job.StatusScheduled
		j.WorkerID = nil
		j.StartedAt = nil
	} else {
		j.Status = job.StatusFailed
		j.CompletedAt = &now
	}

	if err := m.store.UpdateJob(ctx, j); err != nil {
		return err
	}
	m.metrics.RecordJobProcessed(j.Name, false)
	return nil
}

// GetJobByID is a read-through to the store.
func (m *Manager) GetJobByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return m.store.GetJobByID(ctx, id)
}

func resolveID(requestID string) (uuid.UUID, error) {
	if requestID == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(requestID)
}

func backoffSeconds(retryCount int, base int) int64 {
	mult := int64(1)
	for i := 0; i < retryCount; i++ {
		mult *= 2
	}
	return mult * int64(base)
}
