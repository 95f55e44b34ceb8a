package models

// TriggerStatus is the enablement state of a trigger.
type TriggerStatus string

const (
	TriggerStatusActive   TriggerStatus = "active"
	TriggerStatusInactive TriggerStatus = "inactive"
)

// Condition is one descriptive predicate of a trigger. Conditions are inert
// configuration from the client's point of view; only the execution engine
// interprets them.
type Condition struct {
	Parameter string `json:"parameter" validate:"required"`
	Operator  string `json:"operator" validate:"required"`
	Value     any    `json:"value"`
}

// Trigger binds an external event to a workflow start, guarded by a list of
// conditions.
type Trigger struct {
	ID              string        `json:"id"`
	Name            string        `json:"name" validate:"required,min=1"`
	Type            string        `json:"type" validate:"required"`
	ExperimentID    string        `json:"experiment_id"`
	WorkflowID      string        `json:"workflow_id" validate:"required"`
	Conditions      []Condition   `json:"conditions"`
	Status          TriggerStatus `json:"status"`
	WorkflowRunID   string        `json:"workflow_run_id,omitempty"`
	WorkflowRunName string        `json:"workflow_run_name,omitempty"`
}

// Enabled reports whether the trigger should be considered by the engine.
func (t *Trigger) Enabled() bool {
	return t.Status == TriggerStatusActive
}
