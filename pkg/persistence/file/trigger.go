package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
)

// TriggerRepository stores one JSON document per trigger.
type TriggerRepository struct {
	store *jsonStore
}

func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{store: newJSONStore(filepath.Join(root, "triggers"))}
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	return r.store.save(trigger.ID, trigger)
}

func (r *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	var trigger models.Trigger
	if err := r.store.load(id, &trigger, persistence.ErrTriggerNotFound); err != nil {
		return nil, err
	}

	return &trigger, nil
}

func (r *TriggerRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Trigger, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, err
	}

	triggers := make([]*models.Trigger, 0, len(ids))

	for _, id := range ids {
		trigger, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if experimentID == "" || trigger.ExperimentID == experimentID {
			triggers = append(triggers, trigger)
		}
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].Name < triggers[j].Name
	})

	return triggers, nil
}

func (r *TriggerRepository) Delete(_ context.Context, id string) error {
	return r.store.delete(id, persistence.ErrTriggerNotFound)
}
