package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowboard/internal/flow"
)

func TestFactory_SeedsFromLoadedCount(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Replace([]flow.Node{node("dndnode_0", flow.NodeTypeInput), node("dndnode_1", flow.NodeTypeOutput)}, nil))
	f := NewFactory(m)

	assert.Equal(t, "dndnode_2", f.NextID())
	assert.Equal(t, "dndnode_3", f.NextID())
}

func TestFactory_SkipsIDsHeldByLoadedNodes(t *testing.T) {
	m := NewModel()
	// two nodes, but one of them already holds the id the count would give
	require.NoError(t, m.Replace([]flow.Node{node("dndnode_2", flow.NodeTypeInput), node("dndnode_7", flow.NodeTypeOutput)}, nil))
	f := NewFactory(m)

	seen := map[string]bool{"dndnode_2": true, "dndnode_7": true}
	for range 10 {
		id := f.NextID()
		assert.False(t, seen[id], "id %s reused", id)
		seen[id] = true
		require.NoError(t, m.AddNode(node(id, flow.NodeTypeDefault)))
	}
}

func TestFactory_NeverReusesRemovedIDs(t *testing.T) {
	m := NewModel()
	f := NewFactory(m)
	first := f.NewNode(flow.NodeTypeDefault, "", flow.Position{})
	require.NoError(t, m.AddNode(first))
	m.RemoveNode(first.ID)

	assert.NotEqual(t, first.ID, f.NextID())
}

func TestFactory_ReseedOnlyMovesForward(t *testing.T) {
	f := NewFactory(NewModel())
	f.Reseed(5)
	assert.Equal(t, "dndnode_5", f.NextID())
	f.Reseed(1)
	assert.Equal(t, "dndnode_6", f.NextID())
}

func TestDefaultPayload(t *testing.T) {
	tests := []struct {
		typ   flow.NodeType
		label string
		want  flow.NodeData
	}{
		{flow.NodeTypeDefault, "", flow.NodeData{Label: "default node", Status: flow.NodeStatusPending}},
		{flow.NodeTypeOutput, "Result", flow.NodeData{Label: "Result", Status: flow.NodeStatusPending}},
		{flow.NodeTypeTextInput, "In", flow.NodeData{
			Label: "In", Status: flow.NodeStatusPending, Ext: flow.TextInputFields{Text: DefaultInputText},
		}},
		{flow.NodeTypePrompt, "", flow.NodeData{
			Label: "prompt node", Status: flow.NodeStatusPending, Ext: flow.PromptFields{},
		}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.typ), func(t *testing.T) {
			got := DefaultPayload(tt.typ, tt.label)
			assert.Equal(t, tt.want, got)
			assert.Nil(t, got.Output)
			assert.Empty(t, got.Error)
		})
	}
}
