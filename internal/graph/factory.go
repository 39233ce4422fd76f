package graph

import (
	"fmt"
	"sync"

	"github.com/soochol/flowboard/internal/flow"
)

const idPrefix = "dndnode_"

// DefaultInputText seeds the text of a freshly dropped text_input node.
const DefaultInputText = "Default input text..."

// Factory allocates node ids and initial payloads for one editing
// session. Ids come from a counter that only moves forward, so an id is
// never handed out twice in a session.
type Factory struct {
	model *Model

	mu   sync.Mutex
	next int
}

// NewFactory creates a factory for m, seeded from its current node count.
func NewFactory(m *Model) *Factory {
	return &Factory{model: m, next: m.Snapshot().Len()}
}

// Reseed moves the counter to count after a document load. The counter
// never moves backwards.
func (f *Factory) Reseed(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if count > f.next {
		f.next = count
	}
}

// NextID returns an id not present in the model and never returned before.
func (f *Factory) NextID() string {
	snap := f.model.Snapshot()
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		id := fmt.Sprintf("%s%d", idPrefix, f.next)
		f.next++
		if !snap.Has(id) {
			return id
		}
	}
}

// DefaultPayload returns the data of a new node of type t.
func DefaultPayload(t flow.NodeType, label string) flow.NodeData {
	if label == "" {
		label = fmt.Sprintf("%s node", t)
	}
	d := flow.NodeData{
		Label:  label,
		Status: flow.NodeStatusPending,
	}
	switch t {
	case flow.NodeTypeTextInput:
		d.Ext = flow.TextInputFields{Text: DefaultInputText}
	case flow.NodeTypePrompt:
		d.Ext = flow.PromptFields{}
	}
	return d
}

// NewNode builds a node with a fresh id and the default payload.
func (f *Factory) NewNode(t flow.NodeType, label string, pos flow.Position) flow.Node {
	return flow.Node{
		ID:       f.NextID(),
		Type:     t,
		Position: pos,
		Data:     DefaultPayload(t, label),
	}
}
