package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence/file"
	"github.com/expflow/expflow/pkg/services"
)

func setupDispatcher(t *testing.T) (*Dispatcher, *file.Persistence, *services.Trigger, *services.Run) {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.WorkflowRepository().Save(context.Background(), testWorkflow()))

	triggers := services.NewTrigger(p)
	runs := services.NewRun(p, nil)
	dispatcher := NewDispatcher(slog.Default(), triggers, runs)

	return dispatcher, p, triggers, runs
}

func saveTrigger(t *testing.T, p *file.Persistence, trigger *models.Trigger) {
	t.Helper()
	require.NoError(t, p.TriggerRepository().Save(context.Background(), trigger))
}

func TestDispatcherStartsWorkflowOnMatch(t *testing.T) {
	dispatcher, p, triggers, _ := setupDispatcher(t)

	saveTrigger(t, p, &models.Trigger{
		ID:           "tr-1",
		Name:         "retrain on eval",
		Type:         "eval_complete",
		ExperimentID: "exp-1",
		WorkflowID:   "wf-1",
		Status:       models.TriggerStatusActive,
		Conditions: []models.Condition{
			{Parameter: "node_name", Operator: "equals", Value: "benchmark"},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.Publish(Event{Type: "eval_complete", Params: map[string]any{
		"run_id":    "external-run",
		"node_name": "benchmark",
	}})

	require.Eventually(t, func() bool {
		runs, err := p.RunRepository().ListByExperiment(context.Background(), "exp-1")

		return err == nil && len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		trigger, err := triggers.Get(context.Background(), "tr-1")

		return err == nil && trigger.WorkflowRunID != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherIgnoresNonMatchingEvents(t *testing.T) {
	dispatcher, p, _, _ := setupDispatcher(t)

	saveTrigger(t, p, &models.Trigger{
		ID:         "tr-1",
		Name:       "retrain on eval",
		Type:       "eval_complete",
		WorkflowID: "wf-1",
		Status:     models.TriggerStatusActive,
		Conditions: []models.Condition{
			{Parameter: "node_name", Operator: "equals", Value: "benchmark"},
		},
	})

	saveTrigger(t, p, &models.Trigger{
		ID:         "tr-2",
		Name:       "disabled",
		Type:       "train_complete",
		WorkflowID: "wf-1",
		Status:     models.TriggerStatusInactive,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	// Wrong event type for tr-1, right type for the disabled tr-2, and a
	// matching type with a failing condition.
	dispatcher.Publish(Event{Type: "train_complete", Params: map[string]any{
		"node_name": "train adapter",
	}})
	dispatcher.Publish(Event{Type: "eval_complete", Params: map[string]any{
		"node_name": "something else",
	}})

	time.Sleep(200 * time.Millisecond)

	runs, err := p.RunRepository().ListByExperiment(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDispatcherDoesNotChainOwnRuns(t *testing.T) {
	dispatcher, p, _, _ := setupDispatcher(t)

	saveTrigger(t, p, &models.Trigger{
		ID:         "tr-1",
		Name:       "loop",
		Type:       "run_complete",
		WorkflowID: "wf-1",
		Status:     models.TriggerStatusActive,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.Publish(Event{Type: "run_complete", Params: map[string]any{
		"run_id": "external-run",
	}})

	require.Eventually(t, func() bool {
		runs, err := p.RunRepository().ListByExperiment(context.Background(), "")

		return err == nil && len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	runs, err := p.RunRepository().ListByExperiment(context.Background(), "")
	require.NoError(t, err)

	// The completion event of the triggered run must not start another one.
	dispatcher.Publish(Event{Type: "run_complete", Params: map[string]any{
		"run_id": runs[0].ID,
	}})

	time.Sleep(200 * time.Millisecond)

	runs, err = p.RunRepository().ListByExperiment(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
