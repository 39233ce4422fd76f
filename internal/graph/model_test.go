package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowboard/internal/flow"
)

func node(id string, t flow.NodeType) flow.Node {
	return flow.Node{ID: id, Type: t, Data: DefaultPayload(t, "")}
}

func loadedModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel()
	require.NoError(t, m.Replace(
		[]flow.Node{node("n1", flow.NodeTypeInput), node("n2", flow.NodeTypeOutput)},
		[]flow.Edge{{ID: "e1", Source: "n1", Target: "n2"}},
	))
	return m
}

func TestModel_ReplaceRejectsDuplicates(t *testing.T) {
	m := NewModel()
	err := m.Replace([]flow.Node{node("a", flow.NodeTypeDefault), node("a", flow.NodeTypeDefault)}, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.Equal(t, 0, m.Snapshot().Len())
}

func TestModel_AddNode(t *testing.T) {
	m := loadedModel(t)
	require.NoError(t, m.AddNode(node("n3", flow.NodeTypeDefault)))
	assert.Equal(t, []string{"n1", "n2", "n3"}, m.Snapshot().NodeIDs())

	assert.ErrorIs(t, m.AddNode(node("n1", flow.NodeTypeDefault)), ErrDuplicateNode)
}

func TestModel_SnapshotsAreImmutable(t *testing.T) {
	m := loadedModel(t)
	before := m.Snapshot()

	require.True(t, m.UpdateNode("n1", flow.NodePatch{Label: flow.Ptr("changed")}))

	old, _ := before.Node("n1")
	assert.Equal(t, "input node", old.Data.Label)
	cur, _ := m.Snapshot().Node("n1")
	assert.Equal(t, "changed", cur.Data.Label)
	assert.Equal(t, before.Version()+1, m.Snapshot().Version())
}

func TestModel_UpdateUnknownNodeIsNoop(t *testing.T) {
	m := loadedModel(t)
	before := m.Snapshot()

	assert.False(t, m.UpdateNode("ghost", flow.NodePatch{Label: flow.Ptr("x")}))
	assert.Same(t, before, m.Snapshot())
}

func TestModel_UpdateLeavesUnspecifiedFields(t *testing.T) {
	m := loadedModel(t)
	m.UpdateNode("n1", flow.NodePatch{Status: flow.Ptr(flow.NodeStatusCompleted), Output: flow.Ptr[any]("42")})
	m.UpdateNode("n1", flow.NodePatch{Label: flow.Ptr("renamed")})

	n, _ := m.Snapshot().Node("n1")
	assert.Equal(t, "renamed", n.Data.Label)
	assert.Equal(t, flow.NodeStatusCompleted, n.Data.Status)
	assert.Equal(t, "42", n.Data.Output)
}

func TestModel_ApplyPublishesOnce(t *testing.T) {
	m := loadedModel(t)
	v := m.Snapshot().Version()

	changed := m.Apply(func(n flow.Node) (flow.NodePatch, bool) {
		return flow.NodePatch{Status: flow.Ptr(flow.NodeStatusRunning)}, true
	})
	assert.Equal(t, 2, changed)
	assert.Equal(t, v+1, m.Snapshot().Version())

	changed = m.Apply(func(flow.Node) (flow.NodePatch, bool) { return flow.NodePatch{}, false })
	assert.Zero(t, changed)
	assert.Equal(t, v+1, m.Snapshot().Version())
}

func TestModel_SubscribeWakesOnMutation(t *testing.T) {
	m := loadedModel(t)
	snap, notify := m.Subscribe()

	select {
	case <-notify:
		t.Fatal("notified before any mutation")
	default:
	}

	m.AddEdge(flow.Edge{ID: "e2", Source: "n2", Target: "n1"})
	<-notify
	assert.Len(t, snap.Edges(), 1)
	assert.Len(t, m.Snapshot().Edges(), 2)
}

func TestModel_SetSelectedKeepsAtMostOne(t *testing.T) {
	m := loadedModel(t)
	m.SetSelected("n1")
	m.SetSelected("n2")

	count := 0
	for _, n := range m.Snapshot().Nodes() {
		if n.Selected {
			count++
			assert.Equal(t, "n2", n.ID)
		}
	}
	assert.Equal(t, 1, count)

	m.SetSelected("")
	_, ok := m.Snapshot().Selected()
	assert.False(t, ok)
}

func TestModel_RemoveNodePrunesEdges(t *testing.T) {
	m := loadedModel(t)
	require.NoError(t, m.AddNode(node("n3", flow.NodeTypeDefault)))
	m.Connect(Connection{Source: "n2", Target: "n3"})

	assert.True(t, m.RemoveNode("n2"))
	assert.Empty(t, m.Snapshot().Edges())
	assert.Equal(t, []string{"n1", "n3"}, m.Snapshot().NodeIDs())
	assert.False(t, m.RemoveNode("n2"))
}

func TestModel_ConnectIgnoresDuplicates(t *testing.T) {
	m := NewModel()
	e, ok := m.Connect(Connection{Source: "a", Target: "b", SourceHandle: "out"})
	require.True(t, ok)
	assert.Equal(t, "xy-edge__aout-b", e.ID)

	_, ok = m.Connect(Connection{Source: "a", Target: "b", SourceHandle: "out"})
	assert.False(t, ok)
	assert.Len(t, m.Snapshot().Edges(), 1)

	assert.True(t, m.RemoveEdge(e.ID))
	assert.False(t, m.RemoveEdge(e.ID))
}
