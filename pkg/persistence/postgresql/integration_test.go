package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/expflow/expflow/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("expflow_test"),
			postgres.WithUsername("expflow"),
			postgres.WithPassword("expflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	truncateAll(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(ctx)
	})

	return p, ctx
}

func truncateAll(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	for _, table := range []string{"workflows", "runs", "triggers"} {
		_, _ = db.ExecContext(ctx, "TRUNCATE TABLE "+table)
	}
}

func TestIntegration_WorkflowLifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := &models.Workflow{
		ID:           uuid.New().String(),
		Name:         "integration pipeline",
		ExperimentID: "e1",
		Nodes: []*models.Node{
			{ID: "download", Name: "download", Type: models.NodeTypeDownloadModel, Parameters: models.DownloadModelParameters{Model: "org/model"}},
			{ID: "train1", Name: "train1", Type: models.NodeTypeTrain, Parameters: models.TrainParameters{Template: "T1"}},
		},
		Edges:     []*models.Edge{{StartNodeID: "download", EndNodeID: "train1"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	repo := p.WorkflowRepository()
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, models.TrainParameters{Template: "T1"}, loaded.Nodes[1].Parameters)

	// upsert: renames persist
	loaded.Name = "renamed"
	require.NoError(t, repo.Save(ctx, loaded))

	renamed, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)

	workflows, err := repo.ListByExperiment(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, workflow.ID), persistence.ErrWorkflowNotFound)
}

func TestIntegration_RunHistoryOrdering(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RunRepository()

	now := time.Now().UTC()

	for i, created := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Hour), now} {
		run := &models.Run{
			ID:           uuid.New().String(),
			WorkflowID:   "w1",
			ExperimentID: "e1",
			Status:       models.RunStatusComplete,
			CreatedAt:    created,
			Jobs: []*models.Job{
				{ID: uuid.New().String(), TaskName: "train1", Status: models.RunStatusComplete},
			},
		}

		require.NoError(t, repo.Save(ctx, run), "run %d", i)
	}

	runs, err := repo.ListByExperiment(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, runs, 3)

	for i := 1; i < len(runs); i++ {
		assert.True(t, runs[i-1].CreatedAt.After(runs[i].CreatedAt), "runs ordered newest first")
	}

	_, err = repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestIntegration_TriggerToggle(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.TriggerRepository()

	trigger := &models.Trigger{
		ID:           uuid.New().String(),
		Name:         "on train start",
		Type:         "event",
		ExperimentID: "e1",
		WorkflowID:   "w1",
		Status:       models.TriggerStatusInactive,
		Conditions: []models.Condition{
			{Parameter: "event", Operator: models.OperatorEquals, Value: "train_start"},
		},
	}

	require.NoError(t, repo.Save(ctx, trigger))

	trigger.Status = models.TriggerStatusActive
	require.NoError(t, repo.Save(ctx, trigger))

	loaded, err := repo.GetByID(ctx, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusActive, loaded.Status)
	require.Len(t, loaded.Conditions, 1)
}
