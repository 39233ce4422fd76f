// Package editor ties the graph model, persistence and execution together
// into one editing session per open workflow.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/soochol/flowboard/internal/execution"
	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/flow/ports"
	"github.com/soochol/flowboard/internal/graph"
	"github.com/soochol/flowboard/internal/notice"
	"github.com/soochol/flowboard/internal/persist"
)

const (
	msgSaved      = "Workflow saved successfully!"
	msgSaveFailed = "Failed to save workflow: "
	msgLoadFailed = "Failed to load workflow: "
)

// Deps are the collaborators of a Session.
type Deps struct {
	Store     ports.WorkflowStore
	Remote    ports.ExecutionRemote
	Notices   *notice.Center
	Execution execution.Options
}

// Session owns one workflow document while it is being edited. It is safe
// for concurrent use.
type Session struct {
	id        string
	model     *graph.Model
	factory   *graph.Factory
	ingestor  *graph.Ingestor
	inspector *graph.Inspector
	persist   *persist.Client
	coord     *execution.Coordinator
	notices   *notice.Center

	mu       sync.Mutex
	doc      flow.Document // header only; nodes and edges live in model
	open     bool
	readOnly bool

	log *slog.Logger
}

func NewSession(deps Deps) *Session {
	if deps.Notices == nil {
		deps.Notices = notice.NewCenter(0)
	}
	m := graph.NewModel()
	f := graph.NewFactory(m)
	id := uuid.NewString()
	s := &Session{
		id:        id,
		log:       slog.With("session", id),
		model:     m,
		factory:   f,
		ingestor:  graph.NewIngestor(m, f),
		inspector: graph.NewInspector(m),
		persist:   persist.NewClient(deps.Store),
		notices:   deps.Notices,
	}
	opts := deps.Execution
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	userSettle := opts.OnSettle
	opts.OnSettle = func(res execution.Result) {
		s.onSettle(res)
		if userSettle != nil {
			userSettle(res)
		}
	}
	s.coord = execution.NewCoordinator(m, deps.Remote, s.saveForRun, opts)
	return s
}

// ID identifies the session in log records.
func (s *Session) ID() string { return s.id }

// Model exposes the graph for rendering and subscriptions.
func (s *Session) Model() *graph.Model { return s.model }

func (s *Session) Notices() *notice.Center { return s.notices }

// State reports the execution coordinator's state.
func (s *Session) State() execution.State { return s.coord.State() }

// Open loads workflow id into the session, cancelling any run of the
// previous document. On failure a blocking notice is raised and editing
// stays disabled.
func (s *Session) Open(ctx context.Context, id int64) error {
	s.coord.Cancel()
	doc, err := s.persist.Load(ctx, id)
	if err == nil {
		err = s.install(doc)
	}
	if err != nil {
		s.mu.Lock()
		s.readOnly = true
		s.mu.Unlock()
		s.notices.Block(notice.KindError, msgLoadFailed+detail(err))
		return &LoadFailure{WorkflowID: id, Err: err}
	}
	s.log.Info("workflow opened", "workflow_id", id, "nodes", len(doc.Nodes))
	return nil
}

// Create stores a new empty workflow and opens it.
func (s *Session) Create(ctx context.Context, name string) (*flow.Document, error) {
	s.coord.Cancel()
	doc, err := s.persist.Create(ctx, name)
	if err != nil {
		s.notices.Show(notice.KindError, msgSaveFailed+detail(err))
		return nil, &SaveFailure{Err: err}
	}
	if err := s.install(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Session) install(doc *flow.Document) error {
	s.coord.Cancel()
	if err := s.model.Replace(doc.Nodes, doc.Edges); err != nil {
		return err
	}
	s.factory.Reseed(len(doc.Nodes))
	s.inspector.Select("")

	s.mu.Lock()
	s.doc = flow.Document{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID}
	s.open = true
	s.readOnly = false
	s.mu.Unlock()
	return nil
}

// Document returns the current document with the model's nodes and edges.
func (s *Session) Document() flow.Document {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	snap := s.model.Snapshot()
	doc.Nodes = snap.Nodes()
	doc.Edges = snap.Edges()
	return doc
}

// editable returns nil when editing operations are allowed.
func (s *Session) editable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.readOnly:
		return ErrReadOnly
	case !s.open:
		return ErrNotOpen
	}
	return nil
}

// Drop adds a node for a palette drop.
func (s *Session) Drop(ev graph.DropEvent, vp graph.Viewport) (flow.Node, error) {
	if err := s.editable(); err != nil {
		return flow.Node{}, err
	}
	n, ok := s.ingestor.Drop(ev, vp)
	if !ok {
		return flow.Node{}, ErrDropIgnored
	}
	return n, nil
}

// Select selects a node; an empty id clears the selection.
func (s *Session) Select(id string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if id != "" && !s.model.Snapshot().Has(id) {
		s.inspector.Select("")
		return ErrUnknownNode
	}
	s.inspector.Select(id)
	return nil
}

// Selected returns the inspector's view of the selected node, refreshed
// from the model.
func (s *Session) Selected() (flow.Node, bool) {
	s.inspector.Refresh()
	return s.inspector.Selected()
}

// Edit applies p to the selected node.
func (s *Session) Edit(p flow.NodePatch) error {
	if err := s.editable(); err != nil {
		return err
	}
	if _, ok := s.inspector.Selected(); !ok {
		return ErrNoSelection
	}
	if !s.inspector.Edit(p) {
		return ErrUnknownNode
	}
	return nil
}

// Connect links two nodes. A repeated connection returns the existing edge.
func (s *Session) Connect(c graph.Connection) (flow.Edge, error) {
	if err := s.editable(); err != nil {
		return flow.Edge{}, err
	}
	e, added := s.model.Connect(c)
	if !added {
		s.log.Debug("connection exists", "edge", e.ID)
	}
	return e, nil
}

// RemoveNode deletes a node and the edges touching it.
func (s *Session) RemoveNode(id string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if !s.model.RemoveNode(id) {
		return ErrUnknownNode
	}
	s.inspector.Refresh()
	return nil
}

// Save writes the document back. A failure raises a dismissible notice
// and keeps local edits.
func (s *Session) Save(ctx context.Context) error {
	if err := s.editable(); err != nil {
		return err
	}
	doc := s.Document()
	if err := s.persist.Save(ctx, doc); err != nil {
		s.notices.Show(notice.KindError, msgSaveFailed+detail(err))
		return &SaveFailure{WorkflowID: doc.ID, Err: err}
	}
	s.notices.Show(notice.KindSuccess, msgSaved)
	return nil
}

func (s *Session) saveForRun(ctx context.Context) error {
	return s.persist.Save(ctx, s.Document())
}

// Run saves the document and launches it. Progress is merged into the
// model in the background; use Wait for the outcome.
func (s *Session) Run(ctx context.Context) (int64, error) {
	if err := s.editable(); err != nil {
		return 0, err
	}
	id := s.Document().ID
	execID, err := s.coord.Run(ctx, id)
	var lerr *execution.LaunchError
	if errors.As(err, &lerr) {
		return 0, &LaunchFailure{WorkflowID: id, Stage: lerr.Stage, Err: lerr.Err}
	}
	return execID, err
}

// Wait blocks until the current run settles. A remote FAILED status is
// reported through the result and the node states, not as an error.
func (s *Session) Wait(ctx context.Context) (execution.Result, error) {
	res, err := s.coord.Wait(ctx)
	if err != nil {
		return res, err
	}
	var perr *execution.PollError
	var lerr *execution.LaunchError
	switch {
	case errors.As(res.Err, &perr):
		return res, &PollFailure{ExecutionID: perr.ExecutionID, Err: perr}
	case errors.As(res.Err, &lerr):
		return res, &LaunchFailure{WorkflowID: s.Document().ID, Stage: lerr.Stage, Err: lerr.Err}
	}
	return res, res.Err
}

func (s *Session) onSettle(res execution.Result) {
	s.inspector.Refresh()
	var perr *execution.PollError
	switch {
	case errors.As(res.Err, &perr):
		s.notices.Show(notice.KindError, execution.MsgLostContact)
	case res.Err != nil:
		s.notices.Show(notice.KindError, execution.MsgStartFailed)
	case res.Status == flow.ExecutionFailed:
		s.notices.Show(notice.KindWarning, execution.MsgExecutionFailed)
	case res.Status == flow.ExecutionCompleted:
		s.notices.Show(notice.KindSuccess, "Execution completed")
	}
}

// Close cancels any live run. The session cannot run workflows afterwards.
func (s *Session) Close() {
	s.coord.Close()
	s.notices.Close()
}

// detail returns the innermost message of err, which for API errors is the
// server's detail text.
func detail(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
