// Package web provides HTTP request and response types for the workflow API.
package web

// CreateWorkflowRequest represents the request body for creating a new
// workflow. Workflows start empty; nodes and edges are added separately.
type CreateWorkflowRequest struct {
	Name         string `json:"name"          validate:"required,min=1"`
	ExperimentID string `json:"experiment_id" validate:"required"`
}

// RenameWorkflowRequest represents the request body for renaming a workflow.
type RenameWorkflowRequest struct {
	Name string `json:"name" validate:"required,min=1"`
}

// AddNodeRequest represents the request body for adding a node. Parameters
// is the type-specific document (template/model/free-form).
type AddNodeRequest struct {
	Name       string         `json:"name"       validate:"required,min=1"`
	Type       string         `json:"type"       validate:"required"`
	Parameters map[string]any `json:"parameters"`
}

// AddEdgeRequest represents the request body for adding a directed edge.
type AddEdgeRequest struct {
	StartNodeID string `json:"start_node_id" validate:"required"`
	EndNodeID   string `json:"end_node_id"   validate:"required"`
}

// CreateTriggerRequest represents the request body for creating a trigger.
type CreateTriggerRequest struct {
	Name       string             `json:"name"        validate:"required,min=1"`
	Type       string             `json:"type"        validate:"required"`
	WorkflowID string             `json:"workflow_id" validate:"required"`
	Conditions []ConditionRequest `json:"conditions"`
	IsEnabled  bool               `json:"is_enabled"`
}

// ConditionRequest is one descriptive trigger condition. Relayed verbatim;
// never evaluated here.
type ConditionRequest struct {
	Parameter string `json:"parameter" validate:"required"`
	Operator  string `json:"operator"  validate:"required"`
	Value     any    `json:"value"`
}

// StartRunResponse carries the id of a freshly created run.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// NodeKindResponse describes one catalogued node kind.
type NodeKindResponse struct {
	Type        string         `json:"type"`
	DisplayName string         `json:"display_name"`
	Schema      map[string]any `json:"schema"`
}
