package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
)

// RunRepository stores one JSON document per run, jobs included.
type RunRepository struct {
	store *jsonStore
}

func NewRunRepository(root string) *RunRepository {
	return &RunRepository{store: newJSONStore(filepath.Join(root, "runs"))}
}

func (r *RunRepository) Save(_ context.Context, run *models.Run) error {
	if err := r.store.save(run.ID, run); err != nil {
		return &persistence.RunError{Op: "Save", RunID: run.ID, Err: err}
	}

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := r.store.load(id, &run, persistence.ErrRunNotFound); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListByExperiment returns the experiment's run history, newest first.
func (r *RunRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Run, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, err
	}

	runs := make([]*models.Run, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if experimentID == "" || run.ExperimentID == experimentID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}
