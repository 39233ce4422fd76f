package graph

import (
	"sync"

	"github.com/soochol/flowboard/internal/flow"
)

// Inspector mirrors the selected node for the side panel. After every edit
// the local copy is re-read from the model, so both stay equal while the
// node remains selected.
type Inspector struct {
	model *Model

	mu       sync.Mutex
	selected *flow.Node
}

// NewInspector creates an inspector over m with nothing selected.
func NewInspector(m *Model) *Inspector {
	return &Inspector{model: m}
}

// Select makes id the selected node. An empty or unknown id clears the
// selection.
func (in *Inspector) Select(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	n, ok := in.model.Snapshot().Node(id)
	if id == "" || !ok {
		in.selected = nil
		in.model.SetSelected("")
		return
	}
	in.model.SetSelected(id)
	n.Selected = true
	in.selected = &n
}

// Selected returns the inspector's copy of the selected node.
func (in *Inspector) Selected() (flow.Node, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.selected == nil {
		return flow.Node{}, false
	}
	return *in.selected, true
}

// Edit applies p to the selected node. It reports false when nothing is
// selected or the node no longer exists, in which case the selection is
// cleared.
func (in *Inspector) Edit(p flow.NodePatch) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.selected == nil {
		return false
	}
	id := in.selected.ID
	if !in.model.UpdateNode(id, p) {
		in.selected = nil
		return false
	}
	n, ok := in.model.Snapshot().Node(id)
	if !ok {
		in.selected = nil
		return false
	}
	n.Selected = true
	in.selected = &n
	return true
}

// SetLabel edits the selected node's label.
func (in *Inspector) SetLabel(label string) bool {
	return in.Edit(flow.NodePatch{Label: &label})
}

// SetText edits the selected node's input text.
func (in *Inspector) SetText(text string) bool {
	return in.Edit(flow.NodePatch{Text: &text})
}

// Refresh re-reads the selected node from the model, picking up changes
// made elsewhere such as execution results.
func (in *Inspector) Refresh() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.selected == nil {
		return
	}
	n, ok := in.model.Snapshot().Node(in.selected.ID)
	if !ok {
		in.selected = nil
		return
	}
	in.selected = &n
}
