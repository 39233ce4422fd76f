package graph

import (
	"log/slog"

	"github.com/soochol/flowboard/internal/flow"
)

// DropEvent is a palette item released over the canvas.
type DropEvent struct {
	// Type is the node type token carried by the drag; empty when the drag
	// did not originate from the palette.
	Type    string
	Label   string
	ClientX float64
	ClientY float64
}

// Viewport describes where the canvas sits on screen and how it is panned
// and zoomed.
type Viewport struct {
	Left, Top float64 // canvas origin in screen coordinates
	X, Y      float64 // pan
	Zoom      float64
}

// Project converts a screen point into canvas coordinates.
func (v Viewport) Project(clientX, clientY float64) flow.Position {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return flow.Position{
		X: (clientX - v.Left - v.X) / zoom,
		Y: (clientY - v.Top - v.Y) / zoom,
	}
}

// Ingestor turns drop gestures into nodes. It is the only path that
// creates nodes outside of a document load.
type Ingestor struct {
	model   *Model
	factory *Factory
}

// NewIngestor creates an Ingestor adding nodes to m.
func NewIngestor(m *Model, f *Factory) *Ingestor {
	return &Ingestor{model: m, factory: f}
}

// Drop adds a node for ev. Events without a type token are ignored.
// Identical events each produce their own node.
func (in *Ingestor) Drop(ev DropEvent, vp Viewport) (flow.Node, bool) {
	t := flow.NodeType(ev.Type)
	if t == "" {
		slog.Debug("drop ignored: no node type")
		return flow.Node{}, false
	}
	if !t.Known() {
		slog.Debug("dropping node of unrecognized type", "type", ev.Type)
	}
	n := in.factory.NewNode(t, ev.Label, vp.Project(ev.ClientX, ev.ClientY))
	if err := in.model.AddNode(n); err != nil {
		slog.Warn("drop rejected", "id", n.ID, "err", err)
		return flow.Node{}, false
	}
	return n, true
}
