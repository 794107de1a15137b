package job_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/job"
)

func TestClaimable(t *testing.T) {
	now := time.Now()

	t.Run("queued with no worker is claimable", func(t *testing.T) {
		j := &job.Job{Status: job.StatusQueued, CreatedAt: now}
		assert.True(t, j.Claimable(now))
	})

	t.Run("already owned by a worker is not claimable", func(t *testing.T) {
		wid := uuid.New()
		j := &job.Job{Status: job.StatusQueued, WorkerID: &wid}
		assert.False(t, j.Claimable(now))
	})

	t.Run("retryDelayUntil in the future is not claimable", func(t *testing.T) {
		future := now.Add(time.Minute)
		j := &job.Job{Status: job.StatusScheduled, RetryDelayUntil: &future}
		assert.False(t, j.Claimable(now))
	})

	t.Run("terminal status is not claimable", func(t *testing.T) {
		j := &job.Job{Status: job.StatusCompleted}
		assert.False(t, j.Claimable(now))
	})
}

func TestReadyScore(t *testing.T) {
	created := time.Unix(1000, 0)
	j := &job.Job{CreatedAt: created}
	assert.Equal(t, created.Unix(), j.ReadyScore())

	later := time.Unix(2000, 0)
	j.RetryDelayUntil = &later
	assert.Equal(t, later.Unix(), j.ReadyScore())
}

func TestCloneIsIndependent(t *testing.T) {
	wid := uuid.New()
	started := time.Now()
	j := &job.Job{
		ID:        uuid.New(),
		WorkerID:  &wid,
		StartedAt: &started,
		Headers:   map[string][]*string{"X": {strPtr("a")}},
	}

	cp := j.Clone()
	require.NotNil(t, cp)

	*cp.WorkerID = uuid.New()
	assert.NotEqual(t, *j.WorkerID, *cp.WorkerID)

	cp.Headers["X"][0] = strPtr("b")
	assert.Equal(t, "a", *j.Headers["X"][0])
}

func strPtr(s string) *string { return &s }
