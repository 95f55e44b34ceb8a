package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node Node
	}{
		{
			name: "train node",
			node: Node{
				ID:         "n1",
				Name:       "train1",
				Type:       NodeTypeTrain,
				Parameters: TrainParameters{Template: "T1"},
			},
		},
		{
			name: "eval node",
			node: Node{
				ID:         "n2",
				Name:       "eval1",
				Type:       NodeTypeEval,
				Parameters: EvalParameters{Template: "E1"},
			},
		},
		{
			name: "download node",
			node: Node{
				ID:         "n3",
				Name:       "download",
				Type:       NodeTypeDownloadModel,
				Parameters: DownloadModelParameters{Model: "org/model"},
			},
		},
		{
			name: "other node",
			node: Node{
				ID:         "n4",
				Name:       "custom",
				Type:       NodeTypeOther,
				Parameters: OtherParameters{"name": "custom", "script": "run.py"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.node)
			require.NoError(t, err)

			var decoded Node
			require.NoError(t, json.Unmarshal(data, &decoded))

			assert.Equal(t, tt.node.ID, decoded.ID)
			assert.Equal(t, tt.node.Name, decoded.Name)
			assert.Equal(t, tt.node.Type, decoded.Type)
			assert.Equal(t, tt.node.Parameters, decoded.Parameters)
		})
	}
}

func TestNode_UnmarshalJSON_UnknownType(t *testing.T) {
	t.Parallel()

	var node Node
	err := json.Unmarshal([]byte(`{"id":"n1","name":"x","type":"EXPORT","parameters":{}}`), &node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestDecodeParameters_EmptyDefaults(t *testing.T) {
	t.Parallel()

	params, err := DecodeParameters(NodeTypeTrain, nil)
	require.NoError(t, err)
	assert.Equal(t, TrainParameters{}, params)
}

func TestWorkflow_ValidateGraph(t *testing.T) {
	t.Parallel()

	w := &Workflow{
		ID: "w1",
		Nodes: []*Node{
			{ID: "a", Name: "a", Type: NodeTypeTrain, Parameters: TrainParameters{Template: "T1"}},
			{ID: "b", Name: "b", Type: NodeTypeEval, Parameters: EvalParameters{Template: "E1"}},
		},
		Edges: []*Edge{{StartNodeID: "a", EndNodeID: "b"}},
	}
	assert.NoError(t, w.ValidateGraph())

	w.Edges = append(w.Edges, &Edge{StartNodeID: "a", EndNodeID: "ghost"})
	assert.Error(t, w.ValidateGraph())
}

func TestWorkflow_TopologicalOrder(t *testing.T) {
	t.Parallel()

	w := &Workflow{
		ID: "w1",
		Nodes: []*Node{
			{ID: "train", Name: "train", Type: NodeTypeTrain, Parameters: TrainParameters{Template: "T1"}},
			{ID: "download", Name: "download", Type: NodeTypeDownloadModel, Parameters: DownloadModelParameters{Model: "org/model"}},
			{ID: "eval", Name: "eval", Type: NodeTypeEval, Parameters: EvalParameters{Template: "E1"}},
		},
		Edges: []*Edge{
			{StartNodeID: "download", EndNodeID: "train"},
			{StartNodeID: "train", EndNodeID: "eval"},
		},
	}

	ordered, err := w.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "download", ordered[0].ID)
	assert.Equal(t, "train", ordered[1].ID)
	assert.Equal(t, "eval", ordered[2].ID)
}

func TestWorkflow_TopologicalOrder_Cycle(t *testing.T) {
	t.Parallel()

	w := &Workflow{
		ID: "w1",
		Nodes: []*Node{
			{ID: "a", Name: "a", Type: NodeTypeOther, Parameters: OtherParameters{}},
			{ID: "b", Name: "b", Type: NodeTypeOther, Parameters: OtherParameters{}},
		},
		Edges: []*Edge{
			{StartNodeID: "a", EndNodeID: "b"},
			{StartNodeID: "b", EndNodeID: "a"},
		},
	}

	_, err := w.TopologicalOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestWorkflow_DanglingEdges_IgnoredInOrdering(t *testing.T) {
	t.Parallel()

	// Node deletion does not cascade to edges; the leftover edge must be
	// reported as dangling and skipped by the scheduler.
	w := &Workflow{
		ID: "w1",
		Nodes: []*Node{
			{ID: "a", Name: "a", Type: NodeTypeOther, Parameters: OtherParameters{}},
		},
		Edges: []*Edge{{StartNodeID: "a", EndNodeID: "deleted"}},
	}

	dangling := w.DanglingEdges()
	require.Len(t, dangling, 1)
	assert.Equal(t, "deleted", dangling[0].EndNodeID)

	ordered, err := w.TopologicalOrder()
	require.NoError(t, err)
	assert.Len(t, ordered, 1)
}
