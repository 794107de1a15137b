package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/engine"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/registry"
)

func TestConsumerPoolBoundsConcurrency(t *testing.T) {
	reg := registry.New()
	var inFlight int32
	var maxSeen int32

	registry.Register(reg, "slow", func(_ context.Context, _ struct{}, _ *job.Job) (struct{}, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})

	fm := &fakeManagerResolver{}
	processor := engine.NewProcessor(reg, fm, nil, nil)

	ch := make(chan *job.Job, 10)
	pool := engine.NewConsumerPool(ch, processor, 2, nil)

	for i := 0; i < 6; i++ {
		ch <- &job.Job{ID: uuid.New(), Name: "slow", Payload: "{}"}
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer pool did not drain in time")
	}

	require.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 1)
}
