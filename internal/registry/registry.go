// Package registry is the Handler Registry (spec.md §4.5): a process-wide,
// write-once-at-startup mapping from job name to a type-erased invoker.
// Grounded on the teacher's WorkerPool.Job/JobWithOptions registration
// pattern, but resolved with generics at registration time instead of
// reflect.Value per invocation, per spec.md §9's "must be AOT-friendly."
package registry

import (
	"context"

	"github.com/asyncengine/engine/internal/codec"
	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
)

// invoker is the type-erased shape every registration reduces to: decode
// the job's string payload, run the handler, encode the result back to a
// string.
type invoker func(ctx context.Context, payload string, j *job.Job) (string, error)

// Registration is what the Registry stores per job name.
type Registration struct {
	Name     string
	invoke   invoker
	validate func(payload string) error
}

// Registry is the process-wide jobName -> Registration map. It is built up
// by calls to Register at startup, before any worker or HTTP handler runs,
// and is never written again afterward, so steady-state Lookup needs no lock.
type Registry struct {
	handlers map[string]Registration
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Registration)}
}

// Lookup resolves name to its Registration. ok is false if no handler was
// ever registered under that name (spec.md's HandlerNotFound condition).
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.handlers[name]
	return reg, ok
}

// Register wires a typed handler under name, using codec.JSON[Req] and
// codec.JSON[Resp] as the default (de)serialization boundary. The generic
// parameters are resolved once at registration time; Lookup afterward
// returns a Registration whose Invoke is a plain
// func(ctx, string, *job.Job) (string, error) with no further type
// assertions or reflection on the hot path.
func Register[Req, Resp any](r *Registry, name string, handler func(ctx context.Context, req Req, j *job.Job) (Resp, error)) {
	if _, exists := r.handlers[name]; exists {
		panic("registry: handler already registered for job name " + name)
	}

	reqCodec := codec.JSON[Req]{}
	respCodec := codec.JSON[Resp]{}

	r.handlers[name] = Registration{
		Name: name,
		validate: func(payload string) error {
			_, err := reqCodec.Decode(payload)
			return err
		},
		invoke: func(ctx context.Context, payload string, j *job.Job) (string, error) {
			req, err := reqCodec.Decode(payload)
			if err != nil {
				return "", errs.Wrap(errs.KindDeserializationFailed, "decode request payload", err)
			}

			resp, err := handler(ctx, req, j)
			if err != nil {
				return "", err
			}

			out, err := respCodec.Encode(resp)
			if err != nil {
				return "", errs.Wrap(errs.KindDeserializationFailed, "encode handler result", err)
			}
			return out, nil
		},
	}
}

// Invoke runs the registration's type-erased invoker.
func (reg Registration) Invoke(ctx context.Context, payload string, j *job.Job) (string, error) {
	return reg.invoke(ctx, payload, j)
}

// ValidatePayload decodes payload without invoking the handler, used by the
// HTTP Submit handler to turn a malformed body into a 400 before the job is
// ever created (spec.md §4.7: "parsing errors -> 400").
func (reg Registration) ValidatePayload(payload string) error {
	return reg.validate(payload)
}
