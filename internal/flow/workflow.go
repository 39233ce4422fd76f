package flow

// NodeType identifies the kind of a node. The palette offers a fixed set;
// types written by other clients are carried through unchanged.
type NodeType string

const (
	NodeTypeInput       NodeType = "input"
	NodeTypeDefault     NodeType = "default"
	NodeTypeOutput      NodeType = "output"
	NodeTypeTextInput   NodeType = "text_input"
	NodeTypePrompt      NodeType = "prompt"
	NodeTypeFinalOutput NodeType = "final_output"
)

// NodeTypes lists the palette in display order.
var NodeTypes = []NodeType{
	NodeTypeInput,
	NodeTypeDefault,
	NodeTypeOutput,
	NodeTypeTextInput,
	NodeTypePrompt,
	NodeTypeFinalOutput,
}

// Known reports whether t is one of the palette types.
func (t NodeType) Known() bool {
	for _, k := range NodeTypes {
		if t == k {
			return true
		}
	}
	return false
}

// NodeStatus represents the execution state of a node within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// Rank orders statuses along a run: pending < running < completed|failed.
func (s NodeStatus) Rank() int {
	switch s {
	case NodeStatusRunning:
		return 1
	case NodeStatusCompleted, NodeStatusFailed:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether the node finished in the current run.
func (s NodeStatus) Terminal() bool {
	return s.Rank() == 2
}

func parseNodeStatus(s string) NodeStatus {
	switch NodeStatus(s) {
	case NodeStatusRunning, NodeStatusCompleted, NodeStatusFailed:
		return NodeStatus(s)
	default:
		return NodeStatusPending
	}
}

// Position is a point in canvas space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one unit of work on the canvas. Selected and Dragging are UI
// flags and are never persisted.
type Node struct {
	ID       string
	Type     NodeType
	Position Position
	Data     NodeData

	Selected bool
	Dragging bool
}

// Edge is a directed connection between two node ports.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// Document is a workflow as held by one editing session. Node order
// carries no meaning.
type Document struct {
	ID      int64
	Name    string
	OwnerID int64
	Nodes   []Node
	Edges   []Edge
}

// Ptr returns a pointer to v. Handy for building NodePatch values.
func Ptr[T any](v T) *T {
	return &v
}
