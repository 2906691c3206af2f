package scan

import (
	"context"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
)

// GetJob returns the user's scan job
func (s *Scheduler) GetJob(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	job, err := s.jobs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domainerrors.NotFoundError("SCAN_JOB")
	}
	return job, nil
}

// Pause stops scheduling until Resume. A run in progress finishes normally.
func (s *Scheduler) Pause(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	job, err := s.GetJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	job, err = s.jobs.SetStatus(ctx, userID, entities.ScanJobStatusPaused, job.NextRunAt)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domainerrors.NotFoundError("SCAN_JOB")
	}
	s.logger.Info("Scan job paused", "user_id", userID.String(), "job_id", job.ID)
	return job, nil
}

// Resume reactivates the job and makes it due immediately
func (s *Scheduler) Resume(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	job, err := s.jobs.SetStatus(ctx, userID, entities.ScanJobStatusActive, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domainerrors.NotFoundError("SCAN_JOB")
	}
	s.logger.Info("Scan job resumed", "user_id", userID.String(), "job_id", job.ID)
	return job, nil
}

// Force makes the job due now and lets it run once even under a manual policy
func (s *Scheduler) Force(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	current, err := s.GetJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.Status == entities.ScanJobStatusPaused {
		return nil, domainerrors.ScanPausedError()
	}

	job, err := s.jobs.RequestForce(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if job == nil {
		// paused between the read and the update
		return nil, domainerrors.ScanPausedError()
	}
	s.logger.Info("Forced scan requested", "user_id", userID.String(), "job_id", job.ID)
	return job, nil
}
