// Package catalog registers the known node kinds and validates node
// parameters before submission to the workflow store.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"dario.cat/mergo"
	"github.com/expflow/expflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidNode marks a node that fails catalog validation. Callers map it
// to a 400 at the API edge.
var ErrInvalidNode = errors.New("invalid node")

// ErrNoTemplates is returned when a TRAIN/EVAL node is submitted while the
// owning experiment has no templates of the required kind.
var ErrNoTemplates = errors.New("no templates available")

// Kind describes one catalogued node type and the JSON schema its
// parameters must satisfy.
type Kind struct {
	Type        models.NodeType
	DisplayName string
	Schema      map[string]any
}

// Catalog maps node types to their kinds.
type Catalog struct {
	kinds map[models.NodeType]Kind
}

// New builds a catalog with the built-in kinds registered.
func New() *Catalog {
	c := &Catalog{kinds: make(map[models.NodeType]Kind)}

	c.register(Kind{
		Type:        models.NodeTypeTrain,
		DisplayName: "Train",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"template"},
			"properties": map[string]any{
				"template": map[string]any{"type": "string", "minLength": 1},
			},
		},
	})
	c.register(Kind{
		Type:        models.NodeTypeEval,
		DisplayName: "Evaluate",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"template"},
			"properties": map[string]any{
				"template": map[string]any{"type": "string", "minLength": 1},
			},
		},
	})
	c.register(Kind{
		Type:        models.NodeTypeDownloadModel,
		DisplayName: "Download Model",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"model"},
			"properties": map[string]any{
				"model": map[string]any{"type": "string", "minLength": 1},
			},
		},
	})
	c.register(Kind{
		Type:        models.NodeTypeOther,
		DisplayName: "Other",
		Schema:      map[string]any{"type": "object"},
	})

	return c
}

func (c *Catalog) register(kind Kind) {
	c.kinds[kind.Type] = kind
}

// Kind returns the kind registered for the given type.
func (c *Catalog) Kind(typ models.NodeType) (Kind, bool) {
	kind, ok := c.kinds[typ]

	return kind, ok
}

// Kinds lists all registered kinds.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.kinds))
	for _, k := range c.kinds {
		kinds = append(kinds, k)
	}

	slices.SortFunc(kinds, func(a, b Kind) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		default:
			return 0
		}
	})

	return kinds
}

// ValidateNode checks a node against the catalog: name present, type
// registered, parameters satisfying the kind's schema.
func (c *Catalog) ValidateNode(node *models.Node) error {
	if node == nil {
		return fmt.Errorf("%w: node is nil", ErrInvalidNode)
	}

	if node.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidNode)
	}

	kind, ok := c.kinds[node.Type]
	if !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNode, node.Type)
	}

	params, err := node.ParametersMap()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	schemaLoader := gojsonschema.NewGoLoader(kind.Schema)
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation for %s node: %w", node.Type, err)
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += desc.String()
		}

		return fmt.Errorf("%w: %s", ErrInvalidNode, detail)
	}

	return nil
}

// ValidateTemplateRef checks a TRAIN/EVAL node's template reference against
// the template names available on the owning experiment. Submission is
// blocked outright when no templates exist.
func (c *Catalog) ValidateTemplateRef(node *models.Node, available []string) error {
	var ref string

	switch p := node.Parameters.(type) {
	case models.TrainParameters:
		ref = p.Template
	case models.EvalParameters:
		ref = p.Template
	default:
		return nil
	}

	if len(available) == 0 {
		return fmt.Errorf("%w for %s nodes", ErrNoTemplates, node.Type)
	}

	if !slices.Contains(available, ref) {
		return fmt.Errorf("%w: template %q not found", ErrInvalidNode, ref)
	}

	return nil
}

// StaticTemplates is a fixed template list serving every experiment, for
// deployments where templates are configured rather than managed per
// experiment.
type StaticTemplates []string

// Templates returns the configured list regardless of experiment.
func (s StaticTemplates) Templates(_ context.Context, _ string) ([]string, error) {
	return s, nil
}

// BuildOtherNode constructs an OTHER node from an operator-supplied raw
// document. The document must parse as a JSON object; it is deep-merged
// with {"name": name}, the explicit name winning.
func BuildOtherNode(name string, rawDoc []byte) (*models.Node, error) {
	doc := map[string]any{}

	if len(rawDoc) > 0 {
		if err := json.Unmarshal(rawDoc, &doc); err != nil {
			return nil, &models.ParseError{Doc: "node parameters", Err: err}
		}
	}

	base := map[string]any{"name": name}
	if err := mergo.Merge(&base, doc); err != nil {
		return nil, fmt.Errorf("merge node document: %w", err)
	}

	return &models.Node{
		Name:       name,
		Type:       models.NodeTypeOther,
		Parameters: models.OtherParameters(base),
	}, nil
}
