package httpapi

import (
	"time"

	"github.com/asyncengine/engine/internal/job"
)

// Snapshot is the wire shape of a job, per spec.md §6.2.
type Snapshot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retryCount"`
	MaxRetries    int        `json:"maxRetries"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
	Result        *string    `json:"result"`
	Error         *job.Error `json:"error"`
}

// ToSnapshot projects a job.Job onto its wire representation.
func ToSnapshot(j *job.Job) Snapshot {
	return Snapshot{
		ID:            j.ID.String(),
		Name:          j.Name,
		Status:        j.Status.String(),
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		LastUpdatedAt: j.LastUpdatedAt,
		Result:        j.Result,
		Error:         j.Err,
	}
}
