package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/engine"
	"github.com/asyncengine/engine/internal/job"
)

type fakeClaimer struct {
	job *job.Job
	err error
}

func (f *fakeClaimer) ClaimNextAvailableJob(context.Context, uuid.UUID) (*job.Job, error) {
	return f.job, f.err
}

func TestClaimingServiceNoJobFound(t *testing.T) {
	ch := make(chan *job.Job, 1)
	enq := engine.NewEnqueuer(ch, time.Second, nil)
	cs := engine.NewClaimingService(&fakeClaimer{}, enq, uuid.New(), nil)

	outcome := cs.ClaimAndEnqueue(context.Background())
	assert.Equal(t, engine.NoJobFound, outcome)
}

func TestClaimingServiceErrorOccurred(t *testing.T) {
	ch := make(chan *job.Job, 1)
	enq := engine.NewEnqueuer(ch, time.Second, nil)
	cs := engine.NewClaimingService(&fakeClaimer{err: errors.New("boom")}, enq, uuid.New(), nil)

	outcome := cs.ClaimAndEnqueue(context.Background())
	assert.Equal(t, engine.ErrorOccurred, outcome)
}

func TestClaimingServiceJobEnqueued(t *testing.T) {
	ch := make(chan *job.Job, 1)
	enq := engine.NewEnqueuer(ch, time.Second, nil)
	j := &job.Job{ID: uuid.New()}
	cs := engine.NewClaimingService(&fakeClaimer{job: j}, enq, uuid.New(), nil)

	outcome := cs.ClaimAndEnqueue(context.Background())
	require.Equal(t, engine.JobEnqueued, outcome)
	assert.Equal(t, j.ID, (<-ch).ID)
}

func TestClaimingServiceFailedToEnqueue(t *testing.T) {
	ch := make(chan *job.Job) // unbuffered, nobody reads -> forces timeout
	enq := engine.NewEnqueuer(ch, 10*time.Millisecond, nil)
	j := &job.Job{ID: uuid.New()}
	cs := engine.NewClaimingService(&fakeClaimer{job: j}, enq, uuid.New(), nil)

	outcome := cs.ClaimAndEnqueue(context.Background())
	assert.Equal(t, engine.FailedToEnqueue, outcome)
}
