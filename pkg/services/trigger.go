package services

import (
	"context"
	"fmt"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/google/uuid"
)

// Trigger manages trigger configuration. Conditions are stored and relayed
// verbatim; only the execution engine interprets them.
type Trigger struct {
	persistence persistence.Persistence
}

// NewTrigger creates a new trigger service.
func NewTrigger(p persistence.Persistence) *Trigger {
	return &Trigger{persistence: p}
}

// Create registers a trigger bound to one workflow. New triggers start
// inactive until explicitly enabled.
func (s *Trigger) Create(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error) {
	if trigger == nil {
		return nil, NewValidationError("Create", "trigger is required", ErrInvalidRequest)
	}

	if trigger.Name == "" || trigger.Type == "" || trigger.WorkflowID == "" {
		return nil, NewValidationError("Create", "name, type and workflow_id are required", ErrInvalidRequest)
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, trigger.WorkflowID)
	if err != nil {
		return nil, err
	}

	trigger.ID = uuid.New().String()
	trigger.ExperimentID = workflow.ExperimentID

	if trigger.Status == "" {
		trigger.Status = models.TriggerStatusInactive
	}

	if err := s.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return trigger, nil
}

// List returns the triggers configured for an experiment.
func (s *Trigger) List(ctx context.Context, experimentID string) ([]*models.Trigger, error) {
	return s.persistence.TriggerRepository().ListByExperiment(ctx, experimentID)
}

// Get returns a trigger's full detail.
func (s *Trigger) Get(ctx context.Context, triggerID string) (*models.Trigger, error) {
	return s.persistence.TriggerRepository().GetByID(ctx, triggerID)
}

// UpdateRequest carries the fields a client may change on a trigger: the
// enablement toggle and the bound workflow.
type UpdateRequest struct {
	IsEnabled  *bool   `json:"is_enabled,omitempty"`
	WorkflowID *string `json:"workflow_id,omitempty"`
}

// Update applies a partial update and returns the stored trigger.
func (s *Trigger) Update(ctx context.Context, triggerID string, req UpdateRequest) (*models.Trigger, error) {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	if req.IsEnabled != nil {
		if *req.IsEnabled {
			trigger.Status = models.TriggerStatusActive
		} else {
			trigger.Status = models.TriggerStatusInactive
		}
	}

	if req.WorkflowID != nil {
		workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, *req.WorkflowID)
		if err != nil {
			return nil, err
		}

		trigger.WorkflowID = workflow.ID
		trigger.ExperimentID = workflow.ExperimentID
	}

	if err := s.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return trigger, nil
}

// Delete removes a trigger.
func (s *Trigger) Delete(ctx context.Context, triggerID string) error {
	return s.persistence.TriggerRepository().Delete(ctx, triggerID)
}

// RecordRun stamps the trigger with the last run it started, for display.
func (s *Trigger) RecordRun(ctx context.Context, triggerID string, run *models.Run) error {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return err
	}

	trigger.WorkflowRunID = run.ID
	trigger.WorkflowRunName = run.WorkflowName

	if err := s.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}
