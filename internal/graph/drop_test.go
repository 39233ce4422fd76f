package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowboard/internal/flow"
)

func TestViewport_Project(t *testing.T) {
	vp := Viewport{Left: 250, Top: 70, X: 30, Y: -10, Zoom: 2}
	assert.Equal(t, flow.Position{X: 120, Y: 80}, vp.Project(250+30+240, 70-10+160))

	assert.Equal(t, flow.Position{X: 5, Y: 6}, Viewport{}.Project(5, 6))
}

func TestIngestor_DropOntoLoadedDocument(t *testing.T) {
	m := loadedModel(t)
	in := NewIngestor(m, NewFactory(m))
	vp := Viewport{Left: 250, Top: 70, Zoom: 1}

	n, ok := in.Drop(DropEvent{Type: "default", Label: "Process Node", ClientX: 370, ClientY: 150}, vp)
	require.True(t, ok)

	assert.Equal(t, flow.NodeTypeDefault, n.Type)
	assert.Equal(t, flow.Position{X: 120, Y: 80}, n.Position)
	assert.NotEqual(t, "n1", n.ID)
	assert.NotEqual(t, "n2", n.ID)
	assert.Equal(t, flow.NodeStatusPending, n.Data.Status)

	got, ok := m.Snapshot().Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, n, got)
}

func TestIngestor_IgnoresMissingType(t *testing.T) {
	m := loadedModel(t)
	in := NewIngestor(m, NewFactory(m))
	before := m.Snapshot()

	_, ok := in.Drop(DropEvent{Label: "Mystery"}, Viewport{})
	assert.False(t, ok)
	assert.Same(t, before, m.Snapshot())
}

func TestIngestor_KeepsUnrecognizedType(t *testing.T) {
	m := loadedModel(t)
	in := NewIngestor(m, NewFactory(m))

	n, ok := in.Drop(DropEvent{Type: "customInput"}, Viewport{})
	require.True(t, ok)
	assert.Equal(t, flow.NodeType("customInput"), n.Type)
	assert.Equal(t, "customInput node", n.Data.Label)
	assert.Nil(t, n.Data.Ext)
	assert.True(t, m.Snapshot().Has(n.ID))
}

func TestIngestor_DuplicateDropsBecomeDistinctNodes(t *testing.T) {
	m := NewModel()
	in := NewIngestor(m, NewFactory(m))
	ev := DropEvent{Type: "text_input", Label: "Input", ClientX: 10, ClientY: 10}

	seen := map[string]bool{}
	for range 5 {
		n, ok := in.Drop(ev, Viewport{})
		require.True(t, ok)
		assert.False(t, seen[n.ID])
		seen[n.ID] = true
	}
	assert.Equal(t, 5, m.Snapshot().Len())
}
