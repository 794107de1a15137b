package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
)

// ManagerClaimer is the subset of manager.Manager the Job Claiming Service
// needs, kept narrow so tests can fake it.
type ManagerClaimer interface {
	ClaimNextAvailableJob(ctx context.Context, workerID uuid.UUID) (*job.Job, error)
}

// ClaimingService wires Manager.Claim -> Enqueuer.Enqueue -> outcome
// classification in one call, per spec.md §4.3.3.
type ClaimingService struct {
	manager  ManagerClaimer
	enqueuer *Enqueuer
	workerID uuid.UUID
	logger   logging.StructuredLogger
}

// NewClaimingService builds a ClaimingService.
func NewClaimingService(m ManagerClaimer, enqueuer *Enqueuer, workerID uuid.UUID, logger logging.StructuredLogger) *ClaimingService {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &ClaimingService{manager: m, enqueuer: enqueuer, workerID: workerID, logger: logger}
}

// ClaimAndEnqueue performs one claim-and-enqueue cycle.
func (c *ClaimingService) ClaimAndEnqueue(ctx context.Context) ClaimOutcome {
	j, err := c.manager.ClaimNextAvailableJob(ctx, c.workerID)
	if err != nil {
		c.logger.Error("claiming.claim_failed", logging.ErrAttr(err))
		return ErrorOccurred
	}
	if j == nil {
		return NoJobFound
	}

	if !c.enqueuer.Enqueue(ctx, j) {
		// The job is already InProgress in the store; Recovery reclaims it
		// after its lease expires.
		return FailedToEnqueue
	}
	return JobEnqueued
}
