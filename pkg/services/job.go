package services

import (
	"context"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
)

// JobDataSource supplies the engine-side detail of a job (timings,
// evaluator output, encoded scores). The engine implements it.
type JobDataSource interface {
	JobData(jobID string) (models.JobData, bool)
}

// Job resolves single-job detail for the inspector view.
type Job struct {
	persistence persistence.Persistence
	data        JobDataSource
}

// NewJob creates a new job service.
func NewJob(p persistence.Persistence, data JobDataSource) *Job {
	return &Job{
		persistence: p,
		data:        data,
	}
}

// Get locates the job across the run history and assembles its detail.
// Engine-side data is best effort: a job with no recorded data still
// returns with its status and timestamps.
func (s *Job) Get(ctx context.Context, jobID string) (*models.JobDetail, error) {
	runs, err := s.persistence.RunRepository().ListByExperiment(ctx, "")
	if err != nil {
		return nil, err
	}

	for _, run := range runs {
		job, ok := run.JobByID(jobID)
		if !ok {
			continue
		}

		detail := &models.JobDetail{
			ID:     job.ID,
			RunID:  run.ID,
			Status: job.Status,
		}

		if s.data != nil {
			if data, ok := s.data.JobData(jobID); ok {
				detail.JobData = data
			}
		}

		if detail.JobData.StartTime == "" && job.StartTime != nil {
			detail.JobData.StartTime = job.StartTime.UTC().Format("2006-01-02 15:04:05")
		}

		if detail.JobData.EndTime == "" && job.EndTime != nil {
			detail.JobData.EndTime = job.EndTime.UTC().Format("2006-01-02 15:04:05")
		}

		return detail, nil
	}

	return nil, persistence.ErrJobNotFound
}
