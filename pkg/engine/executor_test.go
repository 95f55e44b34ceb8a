package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expflow/expflow/pkg/models"
)

// memoryRunRepository stores JSON clones so tests can read persisted state
// without racing the executor.
type memoryRunRepository struct {
	mu   sync.Mutex
	runs map[string][]byte
}

func newMemoryRunRepository() *memoryRunRepository {
	return &memoryRunRepository{runs: make(map[string][]byte)}
}

func (r *memoryRunRepository) Save(_ context.Context, run *models.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = data

	return nil
}

func (r *memoryRunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, ok := r.runs[id]
	if !ok {
		return nil, nil
	}

	run := &models.Run{}
	if err := json.Unmarshal(data, run); err != nil {
		return nil, err
	}

	return run, nil
}

func (r *memoryRunRepository) ListByExperiment(ctx context.Context, _ string) ([]*models.Run, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.runs))

	for id := range r.runs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	out := make([]*models.Run, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		out = append(out, run)
	}

	return out, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))

	for _, event := range s.events {
		out = append(out, event.Type)
	}

	return out
}

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:           "wf-1",
		Name:         "finetune",
		ExperimentID: "exp-1",
		Nodes: []*models.Node{
			{ID: "n-download", Name: "fetch base model", Type: models.NodeTypeDownloadModel,
				Parameters: models.DownloadModelParameters{Model: "org/base-7b"}},
			{ID: "n-train", Name: "train adapter", Type: models.NodeTypeTrain,
				Parameters: models.TrainParameters{Template: "lora-default"}},
			{ID: "n-eval", Name: "benchmark", Type: models.NodeTypeEval,
				Parameters: models.EvalParameters{Template: "mmlu-lite"}},
		},
		Edges: []*models.Edge{
			{StartNodeID: "n-download", EndNodeID: "n-train"},
			{StartNodeID: "n-train", EndNodeID: "n-eval"},
		},
	}
}

func testRun(workflow *models.Workflow) *models.Run {
	run := &models.Run{
		ID:           "run-1",
		WorkflowID:   workflow.ID,
		ExperimentID: workflow.ExperimentID,
		WorkflowName: workflow.Name,
		Status:       models.RunStatusQueued,
	}

	for i, node := range workflow.Nodes {
		run.Jobs = append(run.Jobs, &models.Job{
			ID:       "job-" + string(rune('a'+i)),
			NodeID:   node.ID,
			TaskName: node.Name,
			Status:   models.RunStatusQueued,
		})
	}

	return run
}

func TestExecutorCompletesRun(t *testing.T) {
	repo := newMemoryRunRepository()
	sink := &captureSink{}
	executor := NewExecutor(slog.Default(), repo,
		WithStepDelay(time.Millisecond), WithEventSink(sink))

	workflow := testWorkflow()
	run := testRun(workflow)

	executor.Launch(run, workflow)
	executor.Wait()

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, models.RunStatusComplete, stored.Status)
	assert.True(t, stored.AllJobsTerminal())

	for _, job := range stored.Jobs {
		assert.Equal(t, models.RunStatusComplete, job.Status)
		assert.NotNil(t, job.StartTime)
		assert.NotNil(t, job.EndTime)
	}

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, "run_start", types[0])
	assert.Equal(t, "run_complete", types[len(types)-1])
	assert.Contains(t, types, "train_start")
	assert.Contains(t, types, "eval_complete")
}

func TestExecutorRecordsJobData(t *testing.T) {
	repo := newMemoryRunRepository()
	executor := NewExecutor(slog.Default(), repo, WithStepDelay(time.Millisecond))

	workflow := testWorkflow()
	run := testRun(workflow)

	executor.Launch(run, workflow)
	executor.Wait()

	// job-c is the EVAL job.
	data, ok := executor.JobData("job-c")
	require.True(t, ok)

	assert.Equal(t, "success", data.CompletionStatus)
	assert.Equal(t, "mmlu-lite", data.Evaluator)
	assert.NotEmpty(t, data.StartTime)
	assert.NotEmpty(t, data.EndTime)

	scores := data.Scores()
	require.Len(t, scores, 2)
	assert.Equal(t, "accuracy", scores[0].Type)

	trainData, ok := executor.JobData("job-b")
	require.True(t, ok)
	assert.Equal(t, "lora-default", trainData.ModelName)
}

func TestExecutorRetainsJobLogs(t *testing.T) {
	repo := newMemoryRunRepository()
	executor := NewExecutor(slog.Default(), repo, WithStepDelay(time.Millisecond))

	workflow := testWorkflow()
	run := testRun(workflow)

	executor.Launch(run, workflow)
	executor.Wait()

	buffer, ok := executor.Logs("job-a")
	require.True(t, ok)

	lines := buffer.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "downloading model")
	assert.Equal(t, "download complete", lines[len(lines)-1])

	// Re-opening after the job finished replays history with no live tail.
	history, live, cancel := buffer.Subscribe()
	defer cancel()

	assert.Equal(t, lines, history)

	_, open := <-live
	assert.False(t, open)
}

func TestExecutorCancelsRun(t *testing.T) {
	repo := newMemoryRunRepository()
	executor := NewExecutor(slog.Default(), repo, WithStepDelay(100*time.Millisecond))

	workflow := testWorkflow()
	run := testRun(workflow)

	executor.Launch(run, workflow)

	require.Eventually(t, func() bool {
		stored, err := repo.GetByID(context.Background(), run.ID)

		return err == nil && stored != nil && stored.Status == models.RunStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, executor.Cancel(run.ID))
	executor.Wait()

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, stored.Status)
	assert.True(t, stored.AllJobsTerminal())

	for _, job := range stored.Jobs {
		assert.NotEqual(t, models.RunStatusComplete, job.Status)
	}

	// A second cancel finds nothing to cancel and the status stays put.
	assert.False(t, executor.Cancel(run.ID))

	again, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, again.Status)
}

func TestExecutorFailsRunWhenNodeMissing(t *testing.T) {
	repo := newMemoryRunRepository()
	executor := NewExecutor(slog.Default(), repo, WithStepDelay(time.Millisecond))

	workflow := testWorkflow()
	run := testRun(workflow)
	run.Jobs[1].NodeID = "n-gone"

	executor.Launch(run, workflow)
	executor.Wait()

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, models.RunStatusComplete, stored.Jobs[0].Status)
	assert.Equal(t, models.RunStatusFailed, stored.Jobs[1].Status)
	assert.Equal(t, models.RunStatusQueued, stored.Jobs[2].Status)
}
