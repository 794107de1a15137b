// Package httpapi is the HTTP Glue boundary (spec.md §4.7 / §6.1):
// Submit and Status, built on net/http alone — no router/framework
// dependency, since spec.md §1 places "the HTTP framework's route parser,
// middleware chain, and content negotiation" out of scope as an external
// collaborator.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/manager"
	"github.com/asyncengine/engine/internal/registry"
)

// SubmitManager is the subset of manager.Manager the Submit handler needs.
type SubmitManager interface {
	SubmitJob(ctx context.Context, jobName string, payload string, sc manager.SubmitContext) (*job.Job, error)
}

// Middleware runs synchronously before enqueue (validation/auth). It may
// write a short-circuit response and return true to stop the handler from
// proceeding to SubmitJob.
type Middleware func(w http.ResponseWriter, r *http.Request) (shortCircuited bool)

// ResponseFactory renders the acknowledgement for a successful submit. The
// default is DefaultResponseFactory (202 + job snapshot).
type ResponseFactory func(w http.ResponseWriter, j *job.Job)

// DefaultResponseFactory writes HTTP 202 with the job snapshot as JSON.
func DefaultResponseFactory(w http.ResponseWriter, j *job.Job) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ToSnapshot(j))
}

// Submit builds the Submit endpoint for jobName, registered against reg to
// validate the request body shape before it's ever persisted.
func Submit(m SubmitManager, reg *registry.Registry, jobName string, middleware Middleware, respond ResponseFactory) http.HandlerFunc {
	if respond == nil {
		respond = DefaultResponseFactory
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if middleware != nil && middleware(w, r) {
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		payload := string(body)

		if reg != nil {
			if handler, ok := reg.Lookup(jobName); ok {
				if err := handler.ValidatePayload(payload); err != nil {
					http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
					return
				}
			}
		}

		sc := manager.SubmitContext{
			RequestID:   r.Header.Get("X-Request-ID"),
			Headers:     cloneHeaders(r.Header),
			RouteParams: routeParams(r),
			QueryParams: queryParams(r),
		}

		j, err := m.SubmitJob(r.Context(), jobName, payload, sc)
		if err != nil {
			var e *errs.E
			if errors.As(err, &e) && e.Kind == errs.KindInvalid {
				http.Error(w, e.Message, http.StatusBadRequest)
				return
			}
			http.Error(w, "failed to submit job", http.StatusInternalServerError)
			return
		}

		respond(w, j)
	}
}

func cloneHeaders(h http.Header) map[string][]*string {
	out := make(map[string][]*string, len(h))
	for k, vs := range h {
		ptrs := make([]*string, len(vs))
		for i, v := range vs {
			v := v
			ptrs[i] = &v
		}
		out[k] = ptrs
	}
	return out
}

// routeParams always returns an empty map: path values matched by the
// ServeMux are not copied onto the job.
func routeParams(r *http.Request) map[string]string {
	return map[string]string{}
}

// queryParams lists the query keys in the order they first appear in the
// raw query string, each with its values in order, duplicates kept.
func queryParams(r *http.Request) []job.QueryParam {
	q := r.URL.Query()
	out := make([]job.QueryParam, 0, len(q))
	seen := make(map[string]bool, len(q))
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		rawKey, _, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(rawKey)
		if err != nil || seen[k] {
			continue
		}
		if v, ok := q[k]; ok {
			seen[k] = true
			out = append(out, job.QueryParam{Key: k, Values: v})
		}
	}
	return out
}
