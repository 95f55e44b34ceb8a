// Package models defines the core domain models for workflow orchestration:
// workflows as directed graphs of typed nodes, runs with per-node jobs, and
// event triggers.
package models

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the kind of work a node performs.
type NodeType string

const (
	NodeTypeTrain         NodeType = "TRAIN"
	NodeTypeEval          NodeType = "EVAL"
	NodeTypeDownloadModel NodeType = "DOWNLOAD_MODEL"
	NodeTypeOther         NodeType = "OTHER"
)

// Valid reports whether t is one of the catalogued node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTrain, NodeTypeEval, NodeTypeDownloadModel, NodeTypeOther:
		return true
	default:
		return false
	}
}

// NodeParameters is the type-specific parameter payload of a node. Exactly
// one concrete shape exists per NodeType.
type NodeParameters interface {
	NodeType() NodeType
}

// TrainParameters configure a TRAIN node.
type TrainParameters struct {
	Template string `json:"template" validate:"required"`
}

func (TrainParameters) NodeType() NodeType { return NodeTypeTrain }

// EvalParameters configure an EVAL node.
type EvalParameters struct {
	Template string `json:"template" validate:"required"`
}

func (EvalParameters) NodeType() NodeType { return NodeTypeEval }

// DownloadModelParameters configure a DOWNLOAD_MODEL node. Model is a
// repository identifier such as "org/model"; no existence check is performed.
type DownloadModelParameters struct {
	Model string `json:"model" validate:"required"`
}

func (DownloadModelParameters) NodeType() NodeType { return NodeTypeDownloadModel }

// OtherParameters hold the free-form document of an OTHER node. This is the
// escape hatch for node kinds the catalog does not model.
type OtherParameters map[string]any

func (OtherParameters) NodeType() NodeType { return NodeTypeOther }

// Node is one typed unit of work within a workflow.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name" validate:"required,min=1"`
	Type       NodeType       `json:"type" validate:"required"`
	Parameters NodeParameters `json:"parameters"`
}

// nodeEnvelope is the wire form of a node; Parameters stays raw until the
// type is known.
type nodeEnvelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       NodeType        `json:"type"`
	Parameters json.RawMessage `json:"parameters"`
}

// DecodeParameters decodes a raw parameter document into the concrete shape
// for the given node type.
func DecodeParameters(typ NodeType, raw []byte) (NodeParameters, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch typ {
	case NodeTypeTrain:
		var p TrainParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode TRAIN parameters: %w", err)
		}

		return p, nil
	case NodeTypeEval:
		var p EvalParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode EVAL parameters: %w", err)
		}

		return p, nil
	case NodeTypeDownloadModel:
		var p DownloadModelParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode DOWNLOAD_MODEL parameters: %w", err)
		}

		return p, nil
	case NodeTypeOther:
		var p OtherParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode OTHER parameters: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", typ)
	}
}

// DecodeParametersMap is DecodeParameters for already-unmarshalled documents
// (the YAML import path).
func DecodeParametersMap(typ NodeType, doc map[string]any) (NodeParameters, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode parameter document: %w", err)
	}

	return DecodeParameters(typ, raw)
}

// ParametersMap renders the node's parameters as a generic document (the
// YAML export path).
func (n *Node) ParametersMap() (map[string]any, error) {
	raw, err := json.Marshal(n.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters for node %s: %w", n.ID, err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode parameters for node %s: %w", n.ID, err)
	}

	return out, nil
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var env nodeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	params, err := DecodeParameters(env.Type, env.Parameters)
	if err != nil {
		return err
	}

	n.ID = env.ID
	n.Name = env.Name
	n.Type = env.Type
	n.Parameters = params

	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	params := n.Parameters
	if params == nil {
		params = OtherParameters{}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	return json.Marshal(nodeEnvelope{
		ID:         n.ID,
		Name:       n.Name,
		Type:       n.Type,
		Parameters: raw,
	})
}
