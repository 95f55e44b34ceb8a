package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/models"
)

// createWorkflowRequest mirrors the server-side request body.
type createWorkflowRequest struct {
	Name         string `json:"name"`
	ExperimentID string `json:"experiment_id"`
}

type renameWorkflowRequest struct {
	Name string `json:"name"`
}

type addNodeRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

type addEdgeRequest struct {
	StartNodeID string `json:"start_node_id"`
	EndNodeID   string `json:"end_node_id"`
}

type startRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CreateWorkflow creates an empty workflow in the experiment.
func (c *Client) CreateWorkflow(ctx context.Context, name, experimentID string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := c.do(ctx, http.MethodPost, "/workflows",
		createWorkflowRequest{Name: name, ExperimentID: experimentID}, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// GetWorkflow re-fetches a workflow graph.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	if err := c.do(ctx, http.MethodGet, "/workflows/"+workflowID, nil, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// ListWorkflows returns the workflows of an experiment.
func (c *Client) ListWorkflows(ctx context.Context, experimentID string) ([]*models.Workflow, error) {
	var workflows []*models.Workflow

	path := "/workflows?experiment_id=" + url.QueryEscape(experimentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &workflows); err != nil {
		return nil, err
	}

	return workflows, nil
}

// RenameWorkflow changes the workflow name.
func (c *Client) RenameWorkflow(ctx context.Context, workflowID, name string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := c.do(ctx, http.MethodPatch, "/workflows/"+workflowID,
		renameWorkflowRequest{Name: name}, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return c.do(ctx, http.MethodDelete, "/workflows/"+workflowID, nil, nil)
}

// AddNode appends a typed node; the server assigns the node id.
func (c *Client) AddNode(ctx context.Context, workflowID, name string, typ models.NodeType, parameters map[string]any) (*models.Node, error) {
	node := &models.Node{}

	err := c.do(ctx, http.MethodPost, "/workflows/"+workflowID+"/nodes",
		addNodeRequest{Name: name, Type: string(typ), Parameters: parameters}, node)
	if err != nil {
		return nil, err
	}

	return node, nil
}

// AddOtherNode builds an OTHER node from a raw JSON document and submits
// it. The document is parsed and merged client-side, so a malformed
// document fails with a models.ParseError before anything reaches the
// server.
func (c *Client) AddOtherNode(ctx context.Context, workflowID, name string, rawDoc []byte) (*models.Node, error) {
	node, err := catalog.BuildOtherNode(name, rawDoc)
	if err != nil {
		return nil, err
	}

	params, ok := node.Parameters.(models.OtherParameters)
	if !ok {
		return nil, fmt.Errorf("unexpected parameter type %T", node.Parameters)
	}

	return c.AddNode(ctx, workflowID, node.Name, node.Type, map[string]any(params))
}

// UpdateNode replaces a node's name and parameters. Type is fixed.
func (c *Client) UpdateNode(ctx context.Context, workflowID, nodeID, name string, typ models.NodeType, parameters map[string]any) (*models.Node, error) {
	node := &models.Node{}

	err := c.do(ctx, http.MethodPut, "/workflows/"+workflowID+"/nodes/"+nodeID,
		addNodeRequest{Name: name, Type: string(typ), Parameters: parameters}, node)
	if err != nil {
		return nil, err
	}

	return node, nil
}

// RemoveNode deletes a node. Edges referencing it are left dangling by the
// server; use models.Workflow.DanglingEdges to filter them client-side.
func (c *Client) RemoveNode(ctx context.Context, workflowID, nodeID string) error {
	return c.do(ctx, http.MethodDelete, "/workflows/"+workflowID+"/nodes/"+nodeID, nil, nil)
}

// AddEdge appends a directed edge between two existing nodes.
func (c *Client) AddEdge(ctx context.Context, workflowID, startNodeID, endNodeID string) error {
	return c.do(ctx, http.MethodPost, "/workflows/"+workflowID+"/edges",
		addEdgeRequest{StartNodeID: startNodeID, EndNodeID: endNodeID}, nil)
}

// RemoveEdge deletes the edge with the given endpoints.
func (c *Client) RemoveEdge(ctx context.Context, workflowID, startNodeID, endNodeID string) error {
	path := "/workflows/" + workflowID + "/edges?start_node_id=" +
		url.QueryEscape(startNodeID) + "&end_node_id=" + url.QueryEscape(endNodeID)

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ExportWorkflow returns the portable YAML document of a workflow.
func (c *Client) ExportWorkflow(ctx context.Context, workflowID string) ([]byte, error) {
	return c.raw(ctx, http.MethodGet, "/workflows/"+workflowID+"/export", nil, "")
}

// ImportWorkflow creates a workflow in the experiment from a serialized
// document. Malformed documents fail with a parse error; nothing is created.
func (c *Client) ImportWorkflow(ctx context.Context, experimentID string, doc []byte) (*models.Workflow, error) {
	path := "/workflows/import?experiment_id=" + url.QueryEscape(experimentID)

	data, err := c.raw(ctx, http.MethodPost, path, bytes.NewReader(doc), "application/yaml")
	if err != nil {
		return nil, err
	}

	workflow := &models.Workflow{}
	if err := json.Unmarshal(data, workflow); err != nil {
		return nil, fmt.Errorf("decode imported workflow: %w", err)
	}

	return workflow, nil
}

// StartWorkflow starts a run and returns its id. The run begins QUEUED.
func (c *Client) StartWorkflow(ctx context.Context, workflowID string) (string, error) {
	var resp startRunResponse
	if err := c.do(ctx, http.MethodPost, "/workflows/"+workflowID+"/start", nil, &resp); err != nil {
		return "", err
	}

	return resp.RunID, nil
}
