package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/manager"
	"github.com/asyncengine/engine/internal/store/memstore"
)

func newManager(clk *clock.Fake) *manager.Manager {
	s := memstore.New(clk)
	return manager.New(s, clk, nil, nil, manager.Config{DefaultMaxRetries: 2, RetryDelayBaseSeconds: 5})
}

func TestSubmitJobIsIdempotent(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newManager(clk)
	ctx := context.Background()

	sc := manager.SubmitContext{RequestID: "00000000-0000-0000-0000-000000000001"}

	j1, err := m.SubmitJob(ctx, "echo", `{"v":7}`, sc)
	require.NoError(t, err)

	j2, err := m.SubmitJob(ctx, "echo", `{"v":7}`, sc)
	require.NoError(t, err)

	assert.Equal(t, j1.ID, j2.ID)
	assert.Equal(t, job.StatusQueued, j2.Status)
}

func TestSubmitJobGeneratesIDWhenAbsent(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newManager(clk)

	j, err := m.SubmitJob(context.Background(), "echo", "{}", manager.SubmitContext{})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, j.ID)
}

func TestSubmitJobRejectsMalformedRequestID(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newManager(clk)

	_, err := m.SubmitJob(context.Background(), "echo", "{}", manager.SubmitContext{RequestID: "not-a-uuid"})
	require.Error(t, err)
}

func TestProcessJobFailureRetriesThenFails(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newManager(clk)
	ctx := context.Background()

	j, err := m.SubmitJob(ctx, "flaky", "{}", manager.SubmitContext{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		claimed, err := m.ClaimNextAvailableJob(ctx, uuid.New())
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.Equal(t, j.ID, claimed.ID)

		err = m.ProcessJobFailure(ctx, claimed.ID, &job.Error{Code: "E", Message: "x"})
		require.NoError(t, err)

		got, err := m.GetJobByID(ctx, j.ID)
		require.NoError(t, err)

		if i < 2 {
			assert.Equal(t, job.StatusScheduled, got.Status, "iteration %d", i)
			assert.Equal(t, i+1, got.RetryCount)

			// back-off must be at least 2^retryCount * base (P5)
			wantMin := clk.Now().Add(time.Duration(1<<uint(i+1)) * 5 * time.Second)
			assert.True(t, !got.RetryDelayUntil.Before(wantMin))

			clk.Advance(time.Hour) // fast-forward past the back-off window
		} else {
			assert.Equal(t, job.StatusFailed, got.Status)
			assert.Equal(t, 2, got.RetryCount)
		}
	}
}

func TestProcessJobSuccessTransitionsToCompleted(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newManager(clk)
	ctx := context.Background()

	j, err := m.SubmitJob(ctx, "echo", "{}", manager.SubmitContext{})
	require.NoError(t, err)

	claimed, err := m.ClaimNextAvailableJob(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, m.ProcessJobSuccess(ctx, j.ID, "ok"))

	got, err := m.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "ok", *got.Result)
}
