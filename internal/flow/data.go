package flow

import (
	"encoding/json"
	"fmt"
	"maps"
)

// NodeData is the payload carried by every node: a common base shared by
// all types plus an optional type-specific extension.
type NodeData struct {
	Label  string
	Status NodeStatus
	// Output is any JSON value produced by the node; nil means none.
	Output any
	// Error is empty when the node has no error.
	Error string
	Ext   Extension

	// Extra holds keys this client does not model. It is written back
	// verbatim on save and must be treated as read-only.
	Extra map[string]any
}

// Extension is the type-specific part of a node's data.
type Extension interface {
	fields() map[string]any
}

// TextInputFields is carried by text_input nodes.
type TextInputFields struct {
	Text string
}

func (f TextInputFields) fields() map[string]any {
	return map[string]any{"text": f.Text}
}

// PromptFields is carried by prompt nodes.
type PromptFields struct {
	Prompt string
}

func (f PromptFields) fields() map[string]any {
	if f.Prompt == "" {
		return nil
	}
	return map[string]any{"prompt": f.Prompt}
}

// Text returns the raw input text of a text_input node.
func (d NodeData) Text() (string, bool) {
	f, ok := d.Ext.(TextInputFields)
	return f.Text, ok
}

var baseKeys = []string{"label", "status", "output", "error"}

// MarshalJSON flattens the base, extension and extra keys into one object.
func (d NodeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+6)
	maps.Copy(out, d.Extra)
	out["label"] = d.Label
	status := d.Status
	if status == "" {
		status = NodeStatusPending
	}
	out["status"] = status
	out["output"] = d.Output
	if d.Error != "" {
		out["error"] = d.Error
	} else {
		out["error"] = nil
	}
	if d.Ext != nil {
		maps.Copy(out, d.Ext.fields())
	}
	return json.Marshal(out)
}

// DecodeNodeData parses a persisted data object for a node of type t.
// Missing or empty input yields a pending payload.
func DecodeNodeData(t NodeType, raw []byte) (NodeData, error) {
	d := NodeData{Status: NodeStatusPending, Ext: emptyExtension(t)}
	if len(raw) == 0 || string(raw) == "null" {
		return d, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return NodeData{}, fmt.Errorf("decode node data: %w", err)
	}

	if v, ok := m["label"].(string); ok {
		d.Label = v
	}
	if v, ok := m["status"].(string); ok {
		d.Status = parseNodeStatus(v)
	}
	d.Output = m["output"]
	if v, ok := m["error"].(string); ok {
		d.Error = v
	}
	for _, k := range baseKeys {
		delete(m, k)
	}

	switch t {
	case NodeTypeTextInput:
		text, _ := m["text"].(string)
		d.Ext = TextInputFields{Text: text}
		delete(m, "text")
	case NodeTypePrompt:
		prompt, _ := m["prompt"].(string)
		d.Ext = PromptFields{Prompt: prompt}
		delete(m, "prompt")
	}

	if len(m) > 0 {
		d.Extra = m
	}
	return d, nil
}

func emptyExtension(t NodeType) Extension {
	switch t {
	case NodeTypeTextInput:
		return TextInputFields{}
	case NodeTypePrompt:
		return PromptFields{}
	}
	return nil
}

// NodePatch is a partial update of NodeData. Nil fields are left
// untouched. Text and Prompt only apply to nodes whose extension carries
// them.
type NodePatch struct {
	Label  *string
	Status *NodeStatus
	Output *any
	Error  *string
	Text   *string
	Prompt *string
}

// Empty reports whether the patch sets nothing.
func (p NodePatch) Empty() bool {
	return p == NodePatch{}
}

// Merge returns d with the fields set in p applied.
func (d NodeData) Merge(p NodePatch) NodeData {
	if p.Label != nil {
		d.Label = *p.Label
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Output != nil {
		d.Output = *p.Output
	}
	if p.Error != nil {
		d.Error = *p.Error
	}
	switch ext := d.Ext.(type) {
	case TextInputFields:
		if p.Text != nil {
			ext.Text = *p.Text
			d.Ext = ext
		}
	case PromptFields:
		if p.Prompt != nil {
			ext.Prompt = *p.Prompt
			d.Ext = ext
		}
	}
	return d
}

// ResetPatch clears the run state of a node.
func ResetPatch(status NodeStatus, errMsg string) NodePatch {
	return NodePatch{
		Status: Ptr(status),
		Output: Ptr[any](nil),
		Error:  Ptr(errMsg),
	}
}
