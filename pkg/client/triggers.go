package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/expflow/expflow/pkg/models"
)

// createTriggerRequest mirrors the server-side request body.
type createTriggerRequest struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	WorkflowID string             `json:"workflow_id"`
	Conditions []models.Condition `json:"conditions,omitempty"`
	IsEnabled  bool               `json:"is_enabled"`
}

// TriggerUpdate carries the fields a client may change on a trigger.
// Conditions are descriptive metadata interpreted by the engine; this client
// never evaluates them.
type TriggerUpdate struct {
	IsEnabled  *bool   `json:"is_enabled,omitempty"`
	WorkflowID *string `json:"workflow_id,omitempty"`
}

// ListTriggers returns the triggers configured for an experiment.
func (c *Client) ListTriggers(ctx context.Context, experimentID string) ([]*models.Trigger, error) {
	var triggers []*models.Trigger

	path := "/triggers?experiment_id=" + url.QueryEscape(experimentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &triggers); err != nil {
		return nil, err
	}

	return triggers, nil
}

// GetTrigger returns a trigger's full detail, including the name and id of
// the last run it started.
func (c *Client) GetTrigger(ctx context.Context, triggerID string) (*models.Trigger, error) {
	trigger := &models.Trigger{}
	if err := c.do(ctx, http.MethodGet, "/triggers/"+triggerID, nil, trigger); err != nil {
		return nil, err
	}

	return trigger, nil
}

// CreateTrigger registers a trigger bound to one workflow.
func (c *Client) CreateTrigger(ctx context.Context, name, triggerType, workflowID string, conditions []models.Condition, enabled bool) (*models.Trigger, error) {
	trigger := &models.Trigger{}

	err := c.do(ctx, http.MethodPost, "/triggers", createTriggerRequest{
		Name:       name,
		Type:       triggerType,
		WorkflowID: workflowID,
		Conditions: conditions,
		IsEnabled:  enabled,
	}, trigger)
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

// UpdateTrigger applies a partial update (enable toggle, workflow rebind).
func (c *Client) UpdateTrigger(ctx context.Context, triggerID string, update TriggerUpdate) (*models.Trigger, error) {
	trigger := &models.Trigger{}
	if err := c.do(ctx, http.MethodPatch, "/triggers/"+triggerID, update, trigger); err != nil {
		return nil, err
	}

	return trigger, nil
}

// DeleteTrigger removes a trigger.
func (c *Client) DeleteTrigger(ctx context.Context, triggerID string) error {
	return c.do(ctx, http.MethodDelete, "/triggers/"+triggerID, nil, nil)
}
