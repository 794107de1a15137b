// Package metrics defines the observability collaborator injected into the
// Job Manager and engine loops, grounded on Geocoder89-event-hub's worker
// metrics and the prometheus/client_golang dependency surfaced in the
// ErlanBelekov-dist-job-scheduler and flyingrobots-go-redis-work-queue
// manifests.
package metrics

import "time"

// Recorder is the metrics collaborator. Default is NoOp; cmd/server wires
// Prometheus in production.
type Recorder interface {
	RecordJobCreated(jobName string)
	RecordJobClaimed(jobName string)
	RecordJobProcessed(jobName string, success bool)
	RecordHandlerError(jobName string, kind string)
	TimeJobProcessing(jobName string) func()
}

// NoOp discards every observation.
type NoOp struct{}

func (NoOp) RecordJobCreated(string)              {}
func (NoOp) RecordJobClaimed(string)              {}
func (NoOp) RecordJobProcessed(string, bool)      {}
func (NoOp) RecordHandlerError(string, string)    {}
func (NoOp) TimeJobProcessing(string) func()      { return func() {} }

var _ Recorder = NoOp{}
var _ Recorder = (*Prometheus)(nil)

// elapsed is a small seam so TimeJobProcessing doesn't need to call
// time.Since directly in every implementation.
func elapsed(start time.Time) time.Duration {
	return time.Since(start)
}
