package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/expflow/expflow/pkg/models"
)

// ListRuns returns the run history of an experiment, newest first.
func (c *Client) ListRuns(ctx context.Context, experimentID string) ([]*models.Run, error) {
	var runs []*models.Run

	path := "/runs?experiment_id=" + url.QueryEscape(experimentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetRun returns a run with its nested jobs. A run whose workflow document
// is missing or empty fails with a not-found error; callers surface it as an
// invalid-data state.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	run := &models.Run{}
	if err := c.do(ctx, http.MethodGet, "/runs/"+runID, nil, run); err != nil {
		return nil, err
	}

	return run, nil
}

// CancelRun requests cancellation. Cancelling a run that is already terminal
// succeeds without effect.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/runs/"+runID+"/cancel", nil, nil)
}
