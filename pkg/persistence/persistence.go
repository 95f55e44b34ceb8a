// Package persistence provides the storage abstraction for workflows, runs
// and triggers.
package persistence

import (
	"context"

	"github.com/expflow/expflow/pkg/models"
)

// Persistence aggregates the entity repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	TriggerRepository() TriggerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow graphs. Save is an upsert; the stored
// document is authoritative and callers re-fetch after every mutation.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListByExperiment(ctx context.Context, experimentID string) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// RunRepository stores run records including their nested jobs.
type RunRepository interface {
	Save(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	ListByExperiment(ctx context.Context, experimentID string) ([]*models.Run, error)
}

// TriggerRepository stores trigger configuration.
type TriggerRepository interface {
	Save(ctx context.Context, trigger *models.Trigger) error
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	ListByExperiment(ctx context.Context, experimentID string) ([]*models.Trigger, error)
	Delete(ctx context.Context, id string) error
}
