package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
	"github.com/asyncengine/engine/internal/metrics"
	"github.com/asyncengine/engine/internal/registry"
)

// ManagerResolver is the subset of manager.Manager the Job Processor needs
// to report outcomes back through.
type ManagerResolver interface {
	ProcessJobSuccess(ctx context.Context, id uuid.UUID, result string) error
	ProcessJobFailure(ctx context.Context, id uuid.UUID, jobErr *job.Error) error
}

// Processor is the Job Processor (spec.md §4.4): registry lookup ->
// deserialize -> invoke -> serialize -> ProcessJobSuccess/Failure.
type Processor struct {
	registry *registry.Registry
	manager  ManagerResolver
	metrics  metrics.Recorder
	logger   logging.StructuredLogger
}

// NewProcessor builds a Processor.
func NewProcessor(reg *registry.Registry, m ManagerResolver, rec metrics.Recorder, logger logging.StructuredLogger) *Processor {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Processor{registry: reg, manager: m, metrics: rec, logger: logger}
}

// Process resolves j's handler, invokes it, and reports the outcome to the
// Manager. Errors reporting the outcome are logged and swallowed: Recovery
// will reclaim the job from its still-InProgress state.
func (p *Processor) Process(ctx context.Context, j *job.Job) {
	stop := p.metrics.TimeJobProcessing(j.Name)
	defer stop()

	reg, ok := p.registry.Lookup(j.Name)
	if !ok {
		p.fail(ctx, j, toJobError(errs.New(errs.KindHandlerNotFound, "no handler registered for job name: "+j.Name)))
		return
	}

	result, jobErr := p.invoke(ctx, reg, j)
	if jobErr != nil {
		p.fail(ctx, j, jobErr)
		return
	}

	if err := p.manager.ProcessJobSuccess(ctx, j.ID, result); err != nil {
		p.logger.Error("processor.report_success_failed", logging.ErrAttr(err), "job_id", j.ID.String())
	}
}

// invoke runs reg.Invoke and converts both a returned error and a handler
// panic into a *job.Error. The panic is recovered here, not left to reach
// ConsumerPool.process's own recover(): that one only logs and leaves the
// job InProgress for the lease-timeout Recovery path, far slower than
// routing a HandlerException straight through ProcessJobFailure's normal
// retry/backoff, per spec.md §4.4/§7's HandlerException row.
func (p *Processor) invoke(ctx context.Context, reg registry.Registration, j *job.Job) (result string, jobErr *job.Error) {
	defer func() {
		if r := recover(); r != nil {
			jobErr = &job.Error{
				Code:    errs.KindHandlerException.String(),
				Message: fmt.Sprintf("%v", r),
				Exception: &job.ExceptionInfo{
					Type:    fmt.Sprintf("%T", r),
					Message: fmt.Sprintf("%v", r),
					Stack:   string(debug.Stack()),
				},
			}
		}
	}()

	out, err := reg.Invoke(ctx, j.Payload, j)
	if err != nil {
		return "", toJobError(err)
	}
	return out, nil
}

// fail records the handler-layer error and reports failure to the Manager.
// RecordJobProcessed itself is the Manager's responsibility: it is the one
// place the state transition actually lands, including calls to
// ProcessJobFailure made outside the Processor (tests, recovery paths).
func (p *Processor) fail(ctx context.Context, j *job.Job, jobErr *job.Error) {
	p.metrics.RecordHandlerError(j.Name, jobErr.Code)
	if err := p.manager.ProcessJobFailure(ctx, j.ID, jobErr); err != nil {
		p.logger.Error("processor.report_failure_failed", logging.ErrAttr(err), "job_id", j.ID.String())
	}
}

// toJobError wraps a handler-layer error into the job.Error shape spec.md
// §7 describes for HandlerNotFound/DeserializationFailed/HandlerError.
func toJobError(err error) *job.Error {
	var e *errs.E
	if errs.As(err, &e) {
		return &job.Error{Code: e.Kind.String(), Message: e.Message}
	}
	return &job.Error{Code: errs.KindHandlerError.String(), Message: err.Error()}
}
