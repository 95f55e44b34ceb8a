package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed serialized document (workflow export,
// free-form node parameters). Parsing is atomic: a document that fails to
// parse produces no partially-constructed value.
type ParseError struct {
	Doc string // what was being parsed
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s document: %v", e.Doc, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WorkflowDocument is the portable serialized form of a workflow graph,
// exchanged as YAML. It carries structure only; identity (workflow id,
// experiment) is assigned at import.
type WorkflowDocument struct {
	Name  string          `yaml:"name"`
	Nodes []DocumentNode  `yaml:"nodes"`
	Edges []DocumentEdge  `yaml:"edges"`
}

// DocumentNode is a node in serialized form; parameters stay generic until
// decoded against the node type.
type DocumentNode struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters"`
}

// DocumentEdge mirrors Edge in serialized form.
type DocumentEdge struct {
	StartNodeID string `yaml:"start_node_id"`
	EndNodeID   string `yaml:"end_node_id"`
}

// ExportDocument renders the workflow graph as a portable document.
func (w *Workflow) ExportDocument() (*WorkflowDocument, error) {
	doc := &WorkflowDocument{
		Name:  w.Name,
		Nodes: make([]DocumentNode, 0, len(w.Nodes)),
		Edges: make([]DocumentEdge, 0, len(w.Edges)),
	}

	for _, n := range w.Nodes {
		params, err := n.ParametersMap()
		if err != nil {
			return nil, err
		}

		doc.Nodes = append(doc.Nodes, DocumentNode{
			ID:         n.ID,
			Name:       n.Name,
			Type:       string(n.Type),
			Parameters: params,
		})
	}

	for _, e := range w.Edges {
		doc.Edges = append(doc.Edges, DocumentEdge{
			StartNodeID: e.StartNodeID,
			EndNodeID:   e.EndNodeID,
		})
	}

	return doc, nil
}

// MarshalYAML is not customised; Marshal renders the document as YAML text.
func (d *WorkflowDocument) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow document: %w", err)
	}

	return out, nil
}

// ParseWorkflowDocument parses YAML text into a document, rejecting
// malformed input with a ParseError.
func ParseWorkflowDocument(data []byte) (*WorkflowDocument, error) {
	var doc WorkflowDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Doc: "workflow", Err: err}
	}

	return &doc, nil
}

// Materialize turns a document into a workflow graph for the given
// experiment. All structural and type checks run before anything is
// returned; a bad document yields a ParseError and no workflow.
func (d *WorkflowDocument) Materialize(experimentID string) (*Workflow, error) {
	w := &Workflow{
		Name:         d.Name,
		ExperimentID: experimentID,
		Nodes:        make([]*Node, 0, len(d.Nodes)),
		Edges:        make([]*Edge, 0, len(d.Edges)),
	}

	for _, dn := range d.Nodes {
		typ := NodeType(dn.Type)
		if !typ.Valid() {
			return nil, &ParseError{Doc: "workflow", Err: fmt.Errorf("node %q has unknown type %q", dn.ID, dn.Type)}
		}

		if dn.Name == "" {
			return nil, &ParseError{Doc: "workflow", Err: fmt.Errorf("node %q has no name", dn.ID)}
		}

		params, err := DecodeParametersMap(typ, dn.Parameters)
		if err != nil {
			return nil, &ParseError{Doc: "workflow", Err: err}
		}

		w.Nodes = append(w.Nodes, &Node{
			ID:         dn.ID,
			Name:       dn.Name,
			Type:       typ,
			Parameters: params,
		})
	}

	for _, de := range d.Edges {
		w.Edges = append(w.Edges, &Edge{
			StartNodeID: de.StartNodeID,
			EndNodeID:   de.EndNodeID,
		})
	}

	if err := w.ValidateGraph(); err != nil {
		return nil, &ParseError{Doc: "workflow", Err: err}
	}

	return w, nil
}
