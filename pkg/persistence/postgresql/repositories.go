package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
)

// WorkflowRepository stores workflow graphs as JSONB documents.
type WorkflowRepository struct {
	db *sql.DB
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	document, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	const query = `
		INSERT INTO workflows (id, experiment_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET experiment_id = EXCLUDED.experiment_id,
		    document      = EXCLUDED.document,
		    updated_at    = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.ExperimentID, document, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM workflows WHERE id = $1", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Workflow, error) {
	const query = `
		SELECT document FROM workflows
		WHERE ($1 = '' OR experiment_id = $1)
		ORDER BY created_at DESC
	`

	return queryDocuments[models.Workflow](ctx, r.db, query, experimentID)
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// RunRepository stores runs (with nested jobs) as JSONB documents.
type RunRepository struct {
	db *sql.DB
}

func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	document, err := json.Marshal(run)
	if err != nil {
		return &persistence.RunError{Op: "Save", RunID: run.ID, Err: err}
	}

	const query = `
		INSERT INTO runs (id, workflow_id, experiment_id, document, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.ExperimentID, document, run.CreatedAt)
	if err != nil {
		return &persistence.RunError{Op: "Save", RunID: run.ID, Err: err}
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM runs WHERE id = $1", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrRunNotFound
	}

	if err != nil {
		return nil, &persistence.RunError{Op: "GetByID", RunID: id, Err: err}
	}

	var run models.Run
	if err := json.Unmarshal(document, &run); err != nil {
		return nil, &persistence.RunError{Op: "GetByID", RunID: id, Err: err}
	}

	return &run, nil
}

func (r *RunRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Run, error) {
	const query = `
		SELECT document FROM runs
		WHERE ($1 = '' OR experiment_id = $1)
		ORDER BY created_at DESC
	`

	return queryDocuments[models.Run](ctx, r.db, query, experimentID)
}

// TriggerRepository stores triggers as JSONB documents.
type TriggerRepository struct {
	db *sql.DB
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	document, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("encode trigger %s: %w", trigger.ID, err)
	}

	const query = `
		INSERT INTO triggers (id, experiment_id, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET experiment_id = EXCLUDED.experiment_id, document = EXCLUDED.document
	`

	if _, err := r.db.ExecContext(ctx, query, trigger.ID, trigger.ExperimentID, document); err != nil {
		return fmt.Errorf("save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, "SELECT document FROM triggers WHERE id = $1", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTriggerNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get trigger %s: %w", id, err)
	}

	var trigger models.Trigger
	if err := json.Unmarshal(document, &trigger); err != nil {
		return nil, fmt.Errorf("decode trigger %s: %w", id, err)
	}

	return &trigger, nil
}

func (r *TriggerRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*models.Trigger, error) {
	const query = `
		SELECT document FROM triggers
		WHERE ($1 = '' OR experiment_id = $1)
		ORDER BY id
	`

	return queryDocuments[models.Trigger](ctx, r.db, query, experimentID)
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

// queryDocuments runs a single-column JSONB document query and decodes each
// row into T.
func queryDocuments[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*T

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		entity := new(T)
		if err := json.Unmarshal(document, entity); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}

		out = append(out, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return out, nil
}
