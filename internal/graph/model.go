// Package graph holds the in-memory workflow graph of an editing session:
// the node/edge model, the node factory, drop ingestion and the inspector.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/soochol/flowboard/internal/flow"
)

// ErrDuplicateNode is returned when a node id is already in the model.
var ErrDuplicateNode = errors.New("duplicate node id")

// Snapshot is an immutable view of the graph. Every mutation of a Model
// publishes a new Snapshot; existing snapshots never change.
type Snapshot struct {
	version uint64
	nodes   map[string]flow.Node
	order   []string
	edges   []flow.Edge
}

var emptySnapshot = &Snapshot{nodes: map[string]flow.Node{}}

// Version increases by one with every published mutation.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.order) }

// Has reports whether a node with the given id exists.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (flow.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (s *Snapshot) Nodes() []flow.Node {
	out := make([]flow.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// NodeIDs returns all node ids in insertion order.
func (s *Snapshot) NodeIDs() []string {
	return slices.Clone(s.order)
}

// Edges returns all edges.
func (s *Snapshot) Edges() []flow.Edge {
	return slices.Clone(s.edges)
}

// Selected returns the node carrying the selected flag, if any.
func (s *Snapshot) Selected() (flow.Node, bool) {
	for _, id := range s.order {
		if n := s.nodes[id]; n.Selected {
			return n, true
		}
	}
	return flow.Node{}, false
}

// Model owns the node and edge collections of one document.
type Model struct {
	mu   sync.Mutex
	snap *Snapshot
	subs []chan struct{} // closed-and-replaced on each publish
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{snap: emptySnapshot}
}

// Snapshot returns the current snapshot.
func (m *Model) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe returns the current snapshot and a channel that is closed
// when the next snapshot is published.
func (m *Model) Subscribe() (*Snapshot, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.subs = append(m.subs, ch)
	return m.snap, ch
}

// publish installs next and wakes subscribers. Callers hold m.mu.
func (m *Model) publish(next *Snapshot) {
	next.version = m.snap.version + 1
	m.snap = next
	subs := m.subs
	m.subs = nil
	for _, ch := range subs {
		close(ch)
	}
}

// cloneNodes copies the node map so the caller can write to it without
// touching published snapshots.
func (s *Snapshot) cloneNodes() map[string]flow.Node {
	out := make(map[string]flow.Node, len(s.nodes)+1)
	for k, v := range s.nodes {
		out[k] = v
	}
	return out
}

// Replace swaps the whole graph, used when a document is loaded.
func (m *Model) Replace(nodes []flow.Node, edges []flow.Edge) error {
	next := &Snapshot{
		nodes: make(map[string]flow.Node, len(nodes)),
		order: make([]string, 0, len(nodes)),
		edges: slices.Clone(edges),
	}
	for _, n := range nodes {
		if _, dup := next.nodes[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		next.nodes[n.ID] = n
		next.order = append(next.order, n.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish(next)
	return nil
}

// AddNode appends a node.
func (m *Model) AddNode(n flow.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Has(n.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	nodes := m.snap.cloneNodes()
	nodes[n.ID] = n
	m.publish(&Snapshot{
		nodes: nodes,
		order: append(slices.Clone(m.snap.order), n.ID),
		edges: m.snap.edges,
	})
	return nil
}

// UpdateNode shallow-merges patch into the node's data. An unknown id is
// a no-op: the node may have been deleted while the caller was working.
func (m *Model) UpdateNode(id string, patch flow.NodePatch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.snap.nodes[id]
	if !ok {
		return false
	}
	nodes := m.snap.cloneNodes()
	n.Data = n.Data.Merge(patch)
	nodes[id] = n
	m.publish(&Snapshot{nodes: nodes, order: m.snap.order, edges: m.snap.edges})
	return true
}

// Apply calls fn for every node and merges the returned patches as one
// snapshot. fn returns false to leave a node alone. It reports how many
// nodes were patched; no snapshot is published when that is zero.
func (m *Model) Apply(fn func(flow.Node) (flow.NodePatch, bool)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nodes map[string]flow.Node
	changed := 0
	for _, id := range m.snap.order {
		n := m.snap.nodes[id]
		patch, ok := fn(n)
		if !ok || patch.Empty() {
			continue
		}
		if nodes == nil {
			nodes = m.snap.cloneNodes()
		}
		n.Data = n.Data.Merge(patch)
		nodes[id] = n
		changed++
	}
	if changed > 0 {
		m.publish(&Snapshot{nodes: nodes, order: m.snap.order, edges: m.snap.edges})
	}
	return changed
}

// SetSelected marks id as the only selected node. An empty or unknown id
// clears the selection.
func (m *Model) SetSelected(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nodes map[string]flow.Node
	for _, nid := range m.snap.order {
		n := m.snap.nodes[nid]
		want := nid == id
		if n.Selected == want {
			continue
		}
		if nodes == nil {
			nodes = m.snap.cloneNodes()
		}
		n.Selected = want
		nodes[nid] = n
	}
	if nodes != nil {
		m.publish(&Snapshot{nodes: nodes, order: m.snap.order, edges: m.snap.edges})
	}
}

// RemoveNode deletes a node together with every edge touching it.
func (m *Model) RemoveNode(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.snap.Has(id) {
		return false
	}
	nodes := m.snap.cloneNodes()
	delete(nodes, id)
	edges := make([]flow.Edge, 0, len(m.snap.edges))
	for _, e := range m.snap.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	order := slices.DeleteFunc(slices.Clone(m.snap.order), func(s string) bool { return s == id })
	m.publish(&Snapshot{nodes: nodes, order: order, edges: edges})
	return true
}

// AddEdge appends an edge as given. Endpoints are not checked.
func (m *Model) AddEdge(e flow.Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish(&Snapshot{
		nodes: m.snap.nodes,
		order: m.snap.order,
		edges: append(slices.Clone(m.snap.edges), e),
	})
}

// RemoveEdge deletes the edge with the given id.
func (m *Model) RemoveEdge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.snap.edges, func(e flow.Edge) bool { return e.ID == id })
	if i < 0 {
		return false
	}
	m.publish(&Snapshot{
		nodes: m.snap.nodes,
		order: m.snap.order,
		edges: slices.Delete(slices.Clone(m.snap.edges), i, i+1),
	})
	return true
}

// Connection is a user gesture linking two ports.
type Connection struct {
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// EdgeID derives the canvas edge id for a connection.
func (c Connection) EdgeID() string {
	return fmt.Sprintf("xy-edge__%s%s-%s%s", c.Source, c.SourceHandle, c.Target, c.TargetHandle)
}

// Connect adds an edge for c unless the same connection already exists.
func (m *Model) Connect(c Connection) (flow.Edge, bool) {
	e := flow.Edge{
		ID:           c.EdgeID(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.snap.edges {
		if existing.Source == e.Source && existing.Target == e.Target &&
			existing.SourceHandle == e.SourceHandle && existing.TargetHandle == e.TargetHandle {
			return existing, false
		}
	}
	m.publish(&Snapshot{
		nodes: m.snap.nodes,
		order: m.snap.order,
		edges: append(slices.Clone(m.snap.edges), e),
	})
	return e, true
}
