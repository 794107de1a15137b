package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/engine"
	"github.com/asyncengine/engine/internal/job"
)

func TestEnqueuerNonBlockingSend(t *testing.T) {
	ch := make(chan *job.Job, 1)
	e := engine.NewEnqueuer(ch, time.Second, nil)

	j := &job.Job{ID: uuid.New()}
	require.True(t, e.Enqueue(context.Background(), j))

	got := <-ch
	assert.Equal(t, j.ID, got.ID)
}

func TestEnqueuerTimesOutWhenFull(t *testing.T) {
	ch := make(chan *job.Job) // unbuffered, no reader
	e := engine.NewEnqueuer(ch, 20*time.Millisecond, nil)

	ok := e.Enqueue(context.Background(), &job.Job{ID: uuid.New()})
	assert.False(t, ok)
}

func TestEnqueuerReturnsFalseOnCancellation(t *testing.T) {
	ch := make(chan *job.Job)
	e := engine.NewEnqueuer(ch, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := e.Enqueue(ctx, &job.Job{ID: uuid.New()})
	assert.False(t, ok)
}
