package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/store/memstore"
)

func newQueuedJob(clk clock.Clock) *job.Job {
	now := clk.Now()
	return &job.Job{
		ID:            uuid.New(),
		Name:          "echo",
		Status:        job.StatusQueued,
		MaxRetries:    3,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := memstore.New(clock.NewFake(time.Now()))
	ctx := context.Background()

	j := newQueuedJob(clock.NewFake(time.Now()))
	require.NoError(t, s.CreateJob(ctx, j))

	got, err := s.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)

	err = s.CreateJob(ctx, j)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDuplicate))
}

func TestGetJobByIDNotFound(t *testing.T) {
	s := memstore.New(nil)
	_, err := s.GetJobByID(context.Background(), uuid.New())
	require.Error(t, err)
}

// TestAtomicClaim is property P1: with K workers racing against N jobs,
// exactly N distinct claims result and no job is claimed twice.
func TestAtomicClaim(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := memstore.New(clk)
	ctx := context.Background()

	const numJobs = 20
	ids := make([]uuid.UUID, 0, numJobs)
	for i := 0; i < numJobs; i++ {
		j := newQueuedJob(clk)
		require.NoError(t, s.CreateJob(ctx, j))
		ids = append(ids, j.ID)
	}

	const numWorkers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := make(map[uuid.UUID]int)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			workerID := uuid.New()
			j, err := s.ClaimNextAvailableJob(ctx, workerID)
			require.NoError(t, err)
			if j == nil {
				return
			}
			mu.Lock()
			claimed[j.ID]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, claimed, numJobs)
	for _, count := range claimed {
		assert.Equal(t, 1, count)
	}
}

func TestRecoverStuckJobsResetsToScheduled(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := memstore.New(clk)
	ctx := context.Background()

	j := newQueuedJob(clk)
	require.NoError(t, s.CreateJob(ctx, j))

	claimed, err := s.ClaimNextAvailableJob(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	clk.Advance(time.Hour)
	timeoutInstant := clk.Now().Add(-30 * time.Minute)

	recovered, err := s.RecoverStuckJobs(ctx, timeoutInstant, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := s.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, 1, got.RetryCount)
}

func TestRecoverStuckJobsFailsAtRetryCap(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := memstore.New(clk)
	ctx := context.Background()

	j := newQueuedJob(clk)
	j.MaxRetries = 0
	require.NoError(t, s.CreateJob(ctx, j))

	_, err := s.ClaimNextAvailableJob(ctx, uuid.New())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	timeoutInstant := clk.Now().Add(-30 * time.Minute)

	recovered, err := s.RecoverStuckJobs(ctx, timeoutInstant, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := s.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
}
