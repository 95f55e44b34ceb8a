package services_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/engine"
	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/expflow/expflow/pkg/persistence/file"
	"github.com/expflow/expflow/pkg/services"
)

// fakeLauncher records launches without executing anything.
type fakeLauncher struct {
	launched  []*models.Run
	cancelled []string
	holds     bool
}

func (l *fakeLauncher) Launch(run *models.Run, _ *models.Workflow) {
	l.launched = append(l.launched, run)
}

func (l *fakeLauncher) Cancel(runID string) bool {
	l.cancelled = append(l.cancelled, runID)

	return l.holds
}

func setupRunService(t *testing.T) (*services.Run, *services.Workflow, *fakeLauncher, *file.Persistence) {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	launcher := &fakeLauncher{}

	return services.NewRun(p, launcher), services.NewWorkflow(p, catalog.New(), catalog.StaticTemplates{"T1", "T2"}), launcher, p
}

func buildGraph(t *testing.T, svc *services.Workflow, nodes int, edges [][2]int) *models.Workflow {
	t.Helper()
	ctx := context.Background()

	workflow, err := svc.CreateEmpty(ctx, "pipeline", "exp-1")
	require.NoError(t, err)

	ids := make([]string, 0, nodes)

	for i := 0; i < nodes; i++ {
		node, err := svc.AddNode(ctx, workflow.ID, trainNode(string(rune('a'+i))))
		require.NoError(t, err)

		ids = append(ids, node.ID)
	}

	for _, edge := range edges {
		require.NoError(t, svc.AddEdge(ctx, workflow.ID, ids[edge[0]], ids[edge[1]]))
	}

	stored, err := svc.FetchByID(ctx, workflow.ID)
	require.NoError(t, err)

	return stored
}

func TestRunStartMaterializesQueuedJobs(t *testing.T) {
	t.Parallel()

	runSvc, wfSvc, launcher, _ := setupRunService(t)
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 3, [][2]int{{0, 1}, {1, 2}})

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusQueued, run.Status)
	require.Len(t, run.Jobs, 3)

	// Jobs follow the topological order of the graph.
	assert.Equal(t, workflow.Nodes[0].ID, run.Jobs[0].NodeID)
	assert.Equal(t, workflow.Nodes[2].ID, run.Jobs[2].NodeID)

	for _, job := range run.Jobs {
		assert.Equal(t, models.RunStatusQueued, job.Status)
		assert.NotEmpty(t, job.ID)
	}

	require.Len(t, launcher.launched, 1)
	assert.Equal(t, run.ID, launcher.launched[0].ID)
}

func TestRunStartRejectsEmptyAndCyclicWorkflows(t *testing.T) {
	t.Parallel()

	runSvc, wfSvc, launcher, _ := setupRunService(t)
	ctx := context.Background()

	empty, err := wfSvc.CreateEmpty(ctx, "empty", "exp-1")
	require.NoError(t, err)

	_, err = runSvc.Start(ctx, empty.ID)
	assert.ErrorIs(t, err, services.ErrWorkflowEmpty)

	cyclic := buildGraph(t, wfSvc, 2, [][2]int{{0, 1}, {1, 0}})

	_, err = runSvc.Start(ctx, cyclic.ID)
	assert.ErrorIs(t, err, services.ErrWorkflowHasCycle)

	// No run is created and nothing is launched on rejection.
	runs, err := runSvc.List(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, launcher.launched)

	_, err = runSvc.Start(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestRunCancelIdempotent(t *testing.T) {
	t.Parallel()

	runSvc, wfSvc, launcher, _ := setupRunService(t)
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 1, nil)

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	// The engine does not hold the run; cancellation is finished directly.
	require.NoError(t, runSvc.Cancel(ctx, run.ID))

	cancelled, err := runSvc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.AllJobsTerminal())

	// Second cancel is a no-op success and does not reach the engine again.
	engineCalls := len(launcher.cancelled)
	require.NoError(t, runSvc.Cancel(ctx, run.ID))
	assert.Len(t, launcher.cancelled, engineCalls)
}

func TestRunCancelDelegatesToLiveEngine(t *testing.T) {
	t.Parallel()

	runSvc, wfSvc, launcher, _ := setupRunService(t)
	launcher.holds = true
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 1, nil)

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	require.NoError(t, runSvc.Cancel(ctx, run.ID))
	assert.Equal(t, []string{run.ID}, launcher.cancelled)

	// The engine owns the transition; the service does not touch the run.
	stored, err := runSvc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, stored.Status)
}

func TestRunStartSnapshotUnaffectedByEngine(t *testing.T) {
	t.Parallel()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	executor := engine.NewExecutor(slog.Default(), p.RunRepository(),
		engine.WithStepDelay(time.Millisecond))
	runSvc := services.NewRun(p, executor)
	wfSvc := services.NewWorkflow(p, catalog.New(), catalog.StaticTemplates{"T1", "T2"})
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 2, [][2]int{{0, 1}})

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	executor.Wait()

	// The engine works on its own copy; the snapshot handed to the caller
	// still shows the state at creation time.
	assert.Equal(t, models.RunStatusQueued, run.Status)

	for _, job := range run.Jobs {
		assert.Equal(t, models.RunStatusQueued, job.Status)
		assert.Nil(t, job.StartTime)
		assert.Nil(t, job.EndTime)
	}

	stored, err := runSvc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, stored.Status)
}

// finishingLauncher completes the run in the store before reporting that it
// no longer holds it, mimicking a run that finishes while a cancel request
// is in flight.
type finishingLauncher struct {
	store *file.Persistence
}

func (l *finishingLauncher) Launch(_ *models.Run, _ *models.Workflow) {}

func (l *finishingLauncher) Cancel(runID string) bool {
	ctx := context.Background()

	run, err := l.store.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return false
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusComplete

	for _, job := range run.Jobs {
		job.Status = models.RunStatusComplete
		job.EndTime = &now
	}

	_ = l.store.RunRepository().Save(ctx, run)

	return false
}

func TestRunCancelKeepsFinishedRunTerminal(t *testing.T) {
	t.Parallel()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	runSvc := services.NewRun(p, &finishingLauncher{store: p})
	wfSvc := services.NewWorkflow(p, catalog.New(), catalog.StaticTemplates{"T1", "T2"})
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 1, nil)

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	// The engine no longer holds the run because it just finished; the
	// cancel request must not move it out of COMPLETE.
	require.NoError(t, runSvc.Cancel(ctx, run.ID))

	stored, err := runSvc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, stored.Status)
	assert.True(t, stored.AllJobsTerminal())
}

func TestRunGetSurfacesInvalidData(t *testing.T) {
	t.Parallel()

	runSvc, wfSvc, _, _ := setupRunService(t)
	ctx := context.Background()

	workflow := buildGraph(t, wfSvc, 1, nil)

	run, err := runSvc.Start(ctx, workflow.ID)
	require.NoError(t, err)

	require.NoError(t, wfSvc.Delete(ctx, workflow.ID))

	_, err = runSvc.Get(ctx, run.ID)
	assert.ErrorIs(t, err, services.ErrInvalidRunData)
}
