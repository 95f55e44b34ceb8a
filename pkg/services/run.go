package services

import (
	"context"
	"fmt"
	"time"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/google/uuid"
)

// Launcher hands a freshly created run to the execution engine and routes
// cancel requests to it.
type Launcher interface {
	Launch(run *models.Run, workflow *models.Workflow)
	// Cancel requests cancellation of a live run. Returns false when the
	// engine is not executing the run (already finished or never started).
	Cancel(runID string) bool
}

// Run owns the run lifecycle as seen by clients: starting workflows,
// listing history, fetching detail and requesting cancellation. Status
// transitions themselves are driven by the engine.
type Run struct {
	persistence persistence.Persistence
	launcher    Launcher
}

// NewRun creates a new run service.
func NewRun(p persistence.Persistence, launcher Launcher) *Run {
	return &Run{
		persistence: p,
		launcher:    launcher,
	}
}

// Start creates a QUEUED run for the workflow, one QUEUED job per node, and
// hands it to the engine. Workflows without nodes, or whose graph cannot be
// topologically ordered, are rejected before any run is created.
func (s *Run) Start(ctx context.Context, workflowID string) (*models.Run, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if len(workflow.Nodes) == 0 {
		return nil, NewValidationError("Start", "workflow has no nodes to execute", ErrWorkflowEmpty)
	}

	ordered, err := workflow.TopologicalOrder()
	if err != nil {
		return nil, NewValidationError("Start", err.Error(), ErrWorkflowHasCycle)
	}

	now := time.Now().UTC()
	run := &models.Run{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		ExperimentID: workflow.ExperimentID,
		WorkflowName: workflow.Name,
		Status:       models.RunStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
		Jobs:         make([]*models.Job, 0, len(ordered)),
	}

	for _, node := range ordered {
		run.Jobs = append(run.Jobs, &models.Job{
			ID:       uuid.New().String(),
			NodeID:   node.ID,
			TaskName: node.Name,
			Status:   models.RunStatusQueued,
		})
	}

	if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	if s.launcher != nil {
		s.launcher.Launch(run, workflow)
	}

	return run, nil
}

// List returns the full unfiltered run history of an experiment, newest
// first (server-defined ordering).
func (s *Run) List(ctx context.Context, experimentID string) ([]*models.Run, error) {
	return s.persistence.RunRepository().ListByExperiment(ctx, experimentID)
}

// Get returns the run with nested jobs. A run whose workflow document is
// gone or empty fails with ErrInvalidRunData so views can show an explicit
// "invalid data" state instead of rendering partial data.
func (s *Run) Get(ctx context.Context, runID string) (*models.Run, error) {
	run, err := s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, run.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, fmt.Errorf("workflow %s missing: %w", run.WorkflowID, ErrInvalidRunData)
		}

		return nil, err
	}

	if len(workflow.Nodes) == 0 {
		return nil, fmt.Errorf("workflow %s is empty: %w", run.WorkflowID, ErrInvalidRunData)
	}

	return run, nil
}

// Cancel requests cancellation of a run. Cancelling a run that is already
// terminal is a no-op, not an error: a second cancel must never surface a
// failure to the user.
func (s *Run) Cancel(ctx context.Context, runID string) error {
	run, err := s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return nil
	}

	if s.launcher != nil && s.launcher.Cancel(runID) {
		return nil
	}

	// The engine does not hold the run: either a restart while QUEUED, or
	// the run finished between the check above and the cancel call. Re-read
	// before touching anything; a finished run keeps its terminal status.
	run, err = s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return err
	}

	if !run.Status.CanTransition(models.RunStatusCancelled) {
		return nil
	}

	run.Status = models.RunStatusCancelled
	run.UpdatedAt = time.Now().UTC()

	now := time.Now().UTC()

	for _, job := range run.Jobs {
		if !job.Status.Terminal() {
			job.Status = models.RunStatusCancelled
			job.EndTime = &now
		}
	}

	if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	return nil
}
