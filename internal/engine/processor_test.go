package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/engine"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/registry"
)

type fakeManagerResolver struct {
	successID uuid.UUID
	successR  string
	failID    uuid.UUID
	failErr   *job.Error
}

func (f *fakeManagerResolver) ProcessJobSuccess(_ context.Context, id uuid.UUID, result string) error {
	f.successID, f.successR = id, result
	return nil
}

func (f *fakeManagerResolver) ProcessJobFailure(_ context.Context, id uuid.UUID, jobErr *job.Error) error {
	f.failID, f.failErr = id, jobErr
	return nil
}

type echoReq struct {
	V int `json:"v"`
}
type echoResp struct {
	Out int `json:"out"`
}

func TestProcessorSuccess(t *testing.T) {
	reg := registry.New()
	registry.Register(reg, "echo", func(_ context.Context, req echoReq, _ *job.Job) (echoResp, error) {
		return echoResp{Out: req.V * 2}, nil
	})

	fm := &fakeManagerResolver{}
	p := engine.NewProcessor(reg, fm, nil, nil)

	j := &job.Job{ID: uuid.New(), Name: "echo", Payload: `{"v":7}`}
	p.Process(context.Background(), j)

	assert.Equal(t, j.ID, fm.successID)
	assert.Equal(t, `{"out":14}`, fm.successR)
}

func TestProcessorHandlerNotFound(t *testing.T) {
	reg := registry.New()
	fm := &fakeManagerResolver{}
	p := engine.NewProcessor(reg, fm, nil, nil)

	j := &job.Job{ID: uuid.New(), Name: "missing"}
	p.Process(context.Background(), j)

	require.NotNil(t, fm.failErr)
	assert.Equal(t, "HandlerNotFound", fm.failErr.Code)
}

func TestProcessorHandlerPanicBecomesHandlerException(t *testing.T) {
	reg := registry.New()
	registry.Register(reg, "boom", func(_ context.Context, req echoReq, _ *job.Job) (echoResp, error) {
		panic("handler exploded")
	})
	fm := &fakeManagerResolver{}
	p := engine.NewProcessor(reg, fm, nil, nil)

	j := &job.Job{ID: uuid.New(), Name: "boom", Payload: `{"v":1}`}
	p.Process(context.Background(), j)

	require.NotNil(t, fm.failErr)
	assert.Equal(t, "HandlerException", fm.failErr.Code)
	require.NotNil(t, fm.failErr.Exception)
	assert.Equal(t, "handler exploded", fm.failErr.Exception.Message)
	assert.NotEmpty(t, fm.failErr.Exception.Stack)
}

func TestProcessorDeserializationFailed(t *testing.T) {
	reg := registry.New()
	registry.Register(reg, "echo", func(_ context.Context, req echoReq, _ *job.Job) (echoResp, error) {
		return echoResp{}, nil
	})
	fm := &fakeManagerResolver{}
	p := engine.NewProcessor(reg, fm, nil, nil)

	j := &job.Job{ID: uuid.New(), Name: "echo", Payload: "not json"}
	p.Process(context.Background(), j)

	require.NotNil(t, fm.failErr)
	assert.Equal(t, "DeserializationFailed", fm.failErr.Code)
}
