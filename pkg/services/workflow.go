package services

import (
	"context"
	"fmt"
	"time"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateSource resolves the training/eval template names visible to an
// experiment. TRAIN and EVAL nodes must reference one of them.
type TemplateSource interface {
	Templates(ctx context.Context, experimentID string) ([]string, error)
}

// Workflow is the graph store service: it owns all structural mutation of
// workflow graphs. The stored document is the single source of truth; every
// mutation loads, modifies and re-saves it, and callers re-fetch afterwards.
type Workflow struct {
	persistence persistence.Persistence
	catalog     *catalog.Catalog
	templates   TemplateSource
}

// NewWorkflow creates a new workflow service. A nil template source skips
// template reference checks.
func NewWorkflow(p persistence.Persistence, c *catalog.Catalog, templates TemplateSource) *Workflow {
	return &Workflow{
		persistence: p,
		catalog:     c,
		templates:   templates,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateEmpty creates a workflow with no nodes or edges.
func (s *Workflow) CreateEmpty(ctx context.Context, name, experimentID string) (*models.Workflow, error) {
	if name == "" {
		return nil, NewValidationError("CreateEmpty", "name is required", ErrWorkflowNameRequired)
	}

	if experimentID == "" {
		return nil, NewValidationError("CreateEmpty", "experiment id is required", ErrExperimentRequired)
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:           uuid.New().String(),
		Name:         name,
		ExperimentID: experimentID,
		Nodes:        []*models.Node{},
		Edges:        []*models.Edge{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// FetchByID loads a workflow graph.
func (s *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, id)
}

// List returns the workflows owned by an experiment.
func (s *Workflow) List(ctx context.Context, experimentID string) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().ListByExperiment(ctx, experimentID)
}

// Rename changes the workflow name.
func (s *Workflow) Rename(ctx context.Context, id, name string) (*models.Workflow, error) {
	if name == "" {
		return nil, NewValidationError("Rename", "name is required", ErrWorkflowNameRequired)
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.Name = name

	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete removes the workflow document. Runs keep their own copy of job
// state and are unaffected.
func (s *Workflow) Delete(ctx context.Context, id string) error {
	return s.persistence.WorkflowRepository().Delete(ctx, id)
}

// AddNode validates the node against the catalog and appends it to the
// graph. The node id is assigned server-side.
func (s *Workflow) AddNode(ctx context.Context, workflowID string, node *models.Node) (*models.Node, error) {
	if err := s.catalog.ValidateNode(node); err != nil {
		return nil, err
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.checkTemplateRef(ctx, workflow.ExperimentID, node); err != nil {
		return nil, err
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if workflow.HasNode(node.ID) {
		return nil, NewValidationError("AddNode", fmt.Sprintf("node id %q already exists", node.ID), ErrInvalidRequest)
	}

	workflow.Nodes = append(workflow.Nodes, node)

	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	return node, nil
}

// UpdateNode replaces the named node's name and parameters. Type is fixed
// at creation.
func (s *Workflow) UpdateNode(ctx context.Context, workflowID string, node *models.Node) (*models.Node, error) {
	if err := s.catalog.ValidateNode(node); err != nil {
		return nil, err
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.checkTemplateRef(ctx, workflow.ExperimentID, node); err != nil {
		return nil, err
	}

	existing, ok := workflow.NodeByID(node.ID)
	if !ok {
		return nil, persistence.ErrNodeNotFound
	}

	if existing.Type != node.Type {
		return nil, NewValidationError("UpdateNode", "node type cannot be changed", ErrInvalidRequest)
	}

	existing.Name = node.Name
	existing.Parameters = node.Parameters

	if err := s.save(ctx, workflow); err != nil {
		return nil, err
	}

	return existing, nil
}

// RemoveNode deletes a node from the graph. Edges referencing the node are
// left in place; consumers filter dangling edges.
func (s *Workflow) RemoveNode(ctx context.Context, workflowID, nodeID string) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	for i, node := range workflow.Nodes {
		if node.ID == nodeID {
			workflow.Nodes = append(workflow.Nodes[:i], workflow.Nodes[i+1:]...)

			return s.save(ctx, workflow)
		}
	}

	return persistence.ErrNodeNotFound
}

// AddEdge appends a directed edge. Both endpoints must exist in the graph;
// on failure the graph is left unchanged.
func (s *Workflow) AddEdge(ctx context.Context, workflowID, startNodeID, endNodeID string) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if !workflow.HasNode(startNodeID) {
		return fmt.Errorf("start node %s: %w", startNodeID, persistence.ErrNodeNotFound)
	}

	if !workflow.HasNode(endNodeID) {
		return fmt.Errorf("end node %s: %w", endNodeID, persistence.ErrNodeNotFound)
	}

	workflow.Edges = append(workflow.Edges, &models.Edge{
		StartNodeID: startNodeID,
		EndNodeID:   endNodeID,
	})

	return s.save(ctx, workflow)
}

// RemoveEdge deletes the first edge matching the endpoint pair.
func (s *Workflow) RemoveEdge(ctx context.Context, workflowID, startNodeID, endNodeID string) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	for i, edge := range workflow.Edges {
		if edge.StartNodeID == startNodeID && edge.EndNodeID == endNodeID {
			workflow.Edges = append(workflow.Edges[:i], workflow.Edges[i+1:]...)

			return s.save(ctx, workflow)
		}
	}

	return persistence.ErrEdgeNotFound
}

// Export renders the workflow graph as a portable YAML document.
func (s *Workflow) Export(ctx context.Context, workflowID string) ([]byte, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	doc, err := workflow.ExportDocument()
	if err != nil {
		return nil, fmt.Errorf("export workflow %s: %w", workflowID, err)
	}

	return doc.Marshal()
}

// Import creates a workflow for the experiment from a serialized document.
// Malformed documents are rejected atomically with a ParseError.
func (s *Workflow) Import(ctx context.Context, experimentID string, data []byte) (*models.Workflow, error) {
	if experimentID == "" {
		return nil, NewValidationError("Import", "experiment id is required", ErrExperimentRequired)
	}

	doc, err := models.ParseWorkflowDocument(data)
	if err != nil {
		return nil, err
	}

	workflow, err := doc.Materialize(experimentID)
	if err != nil {
		return nil, err
	}

	for _, node := range workflow.Nodes {
		if err := s.catalog.ValidateNode(node); err != nil {
			return nil, &models.ParseError{Doc: "workflow", Err: err}
		}

		if err := s.checkTemplateRef(ctx, experimentID, node); err != nil {
			return nil, err
		}
	}

	if workflow.Name == "" {
		workflow.Name = "imported workflow"
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save imported workflow: %w", err)
	}

	return workflow, nil
}

// checkTemplateRef resolves the experiment's template list and validates
// the node's template reference against it. Submission of TRAIN/EVAL nodes
// is blocked outright while the experiment has no templates.
func (s *Workflow) checkTemplateRef(ctx context.Context, experimentID string, node *models.Node) error {
	if s.templates == nil {
		return nil
	}

	if node.Type != models.NodeTypeTrain && node.Type != models.NodeTypeEval {
		return nil
	}

	available, err := s.templates.Templates(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("list templates for experiment %s: %w", experimentID, err)
	}

	return s.catalog.ValidateTemplateRef(node, available)
}

func (s *Workflow) save(ctx context.Context, workflow *models.Workflow) error {
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}
