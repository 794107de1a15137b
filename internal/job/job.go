// Package job defines the Job record: the single aggregate persisted by the
// store and mutated by the manager.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status is the numeric job status. The codes are fixed on the wire per
// spec.md's "Numeric codes stabilize on-wire representation."
type Status int

const (
	StatusQueued     Status = 100
	StatusScheduled  Status = 200
	StatusInProgress Status = 300
	StatusCompleted  Status = 400
	StatusFailed     Status = 500
	StatusCanceled   Status = 600
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusScheduled:
		return "Scheduled"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a terminal status (spec.md I2).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Claimable reports whether s is eligible for claim per spec.md §4.1.2
// (status leg only; retryDelayUntil and workerID are checked separately).
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusScheduled
}

// QueryParam preserves one query-string key with its ordered, possibly
// duplicated values, per spec.md 3.1's requirement that queryParams keep
// duplicates and order.
type QueryParam struct {
	Key    string
	Values []string
}

// ExceptionInfo describes a handler panic/exception, nested under Error.
type ExceptionInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Error is the structured failure recorded on a job.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Exception *ExceptionInfo `json:"exception,omitempty"`
}

// Job is the single aggregate described in spec.md §3.1.
type Job struct {
	ID   uuid.UUID
	Name string

	Status Status

	Headers     map[string][]*string
	RouteParams map[string]string
	QueryParams []QueryParam

	Payload string
	Result  *string
	Err     *Error

	RetryCount      int
	MaxRetries      int
	RetryDelayUntil *time.Time

	WorkerID *uuid.UUID

	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastUpdatedAt time.Time
}

// Clone returns a deep-enough copy safe to hand across goroutine
// boundaries; the store's API deals exclusively in Job values, never
// references held across async boundaries (spec.md §3.4).
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.WorkerID != nil {
		id := *j.WorkerID
		cp.WorkerID = &id
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.RetryDelayUntil != nil {
		t := *j.RetryDelayUntil
		cp.RetryDelayUntil = &t
	}
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Err != nil {
		e := *j.Err
		cp.Err = &e
	}
	if j.Headers != nil {
		h := make(map[string][]*string, len(j.Headers))
		for k, v := range j.Headers {
			vv := make([]*string, len(v))
			copy(vv, v)
			h[k] = vv
		}
		cp.Headers = h
	}
	if j.RouteParams != nil {
		rp := make(map[string]string, len(j.RouteParams))
		for k, v := range j.RouteParams {
			rp[k] = v
		}
		cp.RouteParams = rp
	}
	if j.QueryParams != nil {
		qp := make([]QueryParam, len(j.QueryParams))
		for i, q := range j.QueryParams {
			vv := make([]string, len(q.Values))
			copy(vv, q.Values)
			qp[i] = QueryParam{Key: q.Key, Values: vv}
		}
		cp.QueryParams = qp
	}
	return &cp
}

// ReadyScore is the score the ready index uses to order claimable jobs:
// max(retryDelayUntil, createdAt) as seconds-since-epoch, per spec.md §4.1.1.
func (j *Job) ReadyScore() int64 {
	score := j.CreatedAt.Unix()
	if j.RetryDelayUntil != nil && j.RetryDelayUntil.Unix() > score {
		score = j.RetryDelayUntil.Unix()
	}
	return score
}

// Claimable reports whether j may be claimed at instant now, per the
// eligibility predicate in spec.md §4.1.2.
func (j *Job) Claimable(now time.Time) bool {
	if j.WorkerID != nil {
		return false
	}
	if !j.Status.Claimable() {
		return false
	}
	if j.RetryDelayUntil != nil && j.RetryDelayUntil.After(now) {
		return false
	}
	return true
}
