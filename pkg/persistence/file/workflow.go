package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow.
type WorkflowRepository struct {
	store *jsonStore
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{store: newJSONStore(filepath.Join(root, "workflows"))}
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := r.store.save(workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := r.store.load(id, &workflow, persistence.ErrWorkflowNotFound); err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Workflow, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if experimentID == "" || workflow.ExperimentID == experimentID {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	return r.store.delete(id, persistence.ErrWorkflowNotFound)
}
