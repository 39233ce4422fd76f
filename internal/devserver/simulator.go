package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/soochol/flowboard/internal/flow"
)

var (
	errNoStartNode = errors.New("no start node")
	errCycle       = errors.New("workflow contains a cycle")
)

// promptInputError reports a prompt node fed something other than a
// non-empty string.
type promptInputError struct {
	got any
}

func (e *promptInputError) Error() string {
	return fmt.Sprintf("prompt node input must be a non-empty string, got %v", e.got)
}

// unknownNodeError reports an edge whose target is not in the workflow.
type unknownNodeError struct {
	id string
}

func (e *unknownNodeError) Error() string {
	return fmt.Sprintf("edge points to unknown node %q", e.id)
}

// failureMessage is the text recorded under results.error for err.
func failureMessage(err error) string {
	var pie *promptInputError
	var une *unknownNodeError
	switch {
	case errors.Is(err, errNoStartNode):
		return "Could not find a starting node."
	case errors.Is(err, errCycle):
		return "Workflow contains a cycle."
	case errors.As(err, &pie):
		return fmt.Sprintf("Input for prompt node must be a non-empty string. Got: %v", pie.got)
	case errors.As(err, &une):
		return fmt.Sprintf("Edge points to unknown node %q.", une.id)
	default:
		return err.Error()
	}
}

// Generator produces text for prompt nodes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EchoGenerator answers every prompt deterministically without calling a
// model.
type EchoGenerator struct{}

func (EchoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "Response to: " + prompt, nil
}

// Simulator evaluates a workflow as a linear chain: it starts at the first
// node that is no edge's target and follows source→target edges, feeding
// each node the previous node's result.
type Simulator struct {
	repo      Repository
	gen       Generator
	stepDelay time.Duration
}

func NewSimulator(repo Repository, gen Generator, stepDelay time.Duration) *Simulator {
	return &Simulator{repo: repo, gen: gen, stepDelay: stepDelay}
}

// Run executes wf and records progress on execution execID. Partial results
// are published after every node while the execution is RUNNING.
func (s *Simulator) Run(ctx context.Context, wf flow.WorkflowRecord, execID int64) {
	log := slog.With("workflow_id", wf.ID, "execution_id", execID)
	if err := s.repo.UpdateExecution(ctx, execID, flow.ExecutionRunning, nil); err != nil {
		log.Error("mark execution running", "err", err)
		return
	}

	results, err := s.walk(ctx, wf, func(partial map[string]any) error {
		return s.repo.UpdateExecution(ctx, execID, flow.ExecutionRunning, partial)
	})

	status := flow.ExecutionCompleted
	if err != nil {
		status = flow.ExecutionFailed
		results = map[string]any{flow.ResultErrorKey: failureMessage(err)}
		log.Warn("execution failed", "err", err)
	}
	// Record the outcome even if the server is shutting down.
	if uerr := s.repo.UpdateExecution(context.WithoutCancel(ctx), execID, status, results); uerr != nil {
		log.Error("record execution outcome", "status", status, "err", uerr)
		return
	}
	log.Info("execution finished", "status", status)
}

func (s *Simulator) walk(ctx context.Context, wf flow.WorkflowRecord, progress func(map[string]any) error) (map[string]any, error) {
	nodes := make(map[string]flow.NodeRecord, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodes[n.ID] = n
	}
	next := make(map[string]string, len(wf.Edges))
	targets := make(map[string]bool, len(wf.Edges))
	for _, e := range wf.Edges {
		next[e.Source] = e.Target
		targets[e.Target] = true
	}

	var start string
	for _, n := range wf.Nodes {
		if !targets[n.ID] {
			start = n.ID
			break
		}
	}
	if start == "" {
		return nil, errNoStartNode
	}

	results := make(map[string]any)
	visited := make(map[string]bool)
	var current any
	for id := start; id != ""; id = next[id] {
		if visited[id] {
			return nil, errCycle
		}
		visited[id] = true
		node, ok := nodes[id]
		if !ok {
			return nil, &unknownNodeError{id: id}
		}

		if err := s.sleep(ctx); err != nil {
			return nil, err
		}
		out, err := s.evaluate(ctx, node, current)
		if err != nil {
			return nil, err
		}
		current = out
		results[id] = out
		if err := progress(maps.Clone(results)); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Simulator) evaluate(ctx context.Context, node flow.NodeRecord, input any) (any, error) {
	t := flow.NodeType(node.Type)
	data, err := flow.DecodeNodeData(t, node.Data)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	switch t {
	case flow.NodeTypeTextInput:
		text, _ := data.Text()
		return text, nil
	case flow.NodeTypePrompt:
		in, ok := input.(string)
		if !ok || in == "" {
			return nil, &promptInputError{got: input}
		}
		prompt := in
		if f, ok := data.Ext.(flow.PromptFields); ok && f.Prompt != "" {
			prompt = renderPrompt(f.Prompt, in)
		}
		return s.gen.Generate(ctx, prompt)
	case flow.NodeTypeOutput, flow.NodeTypeFinalOutput:
		return input, nil
	default:
		slog.Debug("skipping node", "id", node.ID, "type", node.Type)
		return input, nil
	}
}

// renderPrompt substitutes {{input}} in template, or appends the input when
// the template has no placeholder.
func renderPrompt(template, input string) string {
	if strings.Contains(template, "{{input}}") {
		return strings.ReplaceAll(template, "{{input}}", input)
	}
	return template + "\n\n" + input
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
