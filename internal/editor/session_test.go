package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowboard/internal/apiclient"
	"github.com/soochol/flowboard/internal/devserver"
	"github.com/soochol/flowboard/internal/execution"
	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/graph"
	"github.com/soochol/flowboard/internal/notice"
)

type memStore struct {
	mu         sync.Mutex
	recs       map[int64]*flow.WorkflowRecord
	getErr     error
	replaceErr error
}

func (m *memStore) ListWorkflows(context.Context) ([]flow.WorkflowRecord, error) {
	return nil, nil
}

func (m *memStore) GetWorkflow(_ context.Context, id int64) (*flow.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.recs[id]
	if !ok {
		return nil, &apiclient.APIError{StatusCode: 404, Detail: "Workflow not found"}
	}
	return rec, nil
}

func (m *memStore) CreateWorkflow(_ context.Context, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.recs) + 1)
	rec := &flow.WorkflowRecord{ID: id, Name: w.Name, Nodes: w.Nodes, Edges: w.Edges}
	m.recs[id] = rec
	return rec, nil
}

func (m *memStore) ReplaceWorkflow(_ context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	rec := &flow.WorkflowRecord{ID: id, Name: w.Name, Nodes: w.Nodes, Edges: w.Edges}
	m.recs[id] = rec
	return rec, nil
}

type stuckRemote struct {
	launchErr error
}

func (r stuckRemote) StartExecution(context.Context, int64) (*flow.LaunchResponse, error) {
	if r.launchErr != nil {
		return nil, r.launchErr
	}
	return &flow.LaunchResponse{ExecutionID: 1}, nil
}

func (stuckRemote) GetExecution(_ context.Context, id int64) (*flow.ExecutionRecord, error) {
	return &flow.ExecutionRecord{ID: id, Status: flow.ExecutionRunning}, nil
}

// reportingRemote reports every execution as running with a fixed result
// and counts fetches.
type reportingRemote struct {
	results map[string]any
	fetches atomic.Int64
}

func (r *reportingRemote) StartExecution(context.Context, int64) (*flow.LaunchResponse, error) {
	return &flow.LaunchResponse{ExecutionID: 7}, nil
}

func (r *reportingRemote) GetExecution(_ context.Context, id int64) (*flow.ExecutionRecord, error) {
	r.fetches.Add(1)
	return &flow.ExecutionRecord{ID: id, Status: flow.ExecutionRunning, Results: r.results}, nil
}

func storeWith(nodes ...flow.NodeRecord) *memStore {
	return &memStore{recs: map[int64]*flow.WorkflowRecord{
		1: {ID: 1, Name: "wf", Nodes: nodes, Edges: []flow.EdgeRecord{{ID: "e1", Source: "n1", Target: "n2"}}},
	}}
}

func rawNode(id, typ string) flow.NodeRecord {
	return flow.NodeRecord{ID: id, Type: typ, Data: json.RawMessage(`{"label":"` + id + `"}`), Position: json.RawMessage(`{"x":0,"y":0}`)}
}

func newSession(t *testing.T, store *memStore, remote stuckRemote) *Session {
	t.Helper()
	s := NewSession(Deps{
		Store:     store,
		Remote:    remote,
		Notices:   notice.NewCenter(time.Hour),
		Execution: execution.Options{PollInterval: time.Hour},
	})
	t.Cleanup(s.Close)
	return s
}

// Left/Top 250/70 with no pan or zoom maps client (370,150) to (120,80).
var testViewport = graph.Viewport{Left: 250, Top: 70, Zoom: 1}

func TestSession_DropOntoLoadedDocument(t *testing.T) {
	s := newSession(t, storeWith(rawNode("n1", "input"), rawNode("n2", "output")), stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	n, err := s.Drop(graph.DropEvent{Type: "default", ClientX: 370, ClientY: 150}, testViewport)
	require.NoError(t, err)
	assert.Equal(t, flow.NodeTypeDefault, n.Type)
	assert.Equal(t, flow.Position{X: 120, Y: 80}, n.Position)
	assert.Equal(t, flow.NodeStatusPending, n.Data.Status)
	assert.NotContains(t, []string{"n1", "n2"}, n.ID)
	assert.Equal(t, 3, s.Model().Snapshot().Len())
}

func TestSession_DropNeverReusesLoadedIDs(t *testing.T) {
	s := newSession(t, storeWith(rawNode("dndnode_0", "input"), rawNode("dndnode_2", "output")), stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	seen := map[string]bool{"dndnode_0": true, "dndnode_2": true}
	for range 5 {
		n, err := s.Drop(graph.DropEvent{Type: "output"}, testViewport)
		require.NoError(t, err)
		assert.False(t, seen[n.ID], "id %s reused", n.ID)
		seen[n.ID] = true
	}
}

func TestSession_DropUnknownType(t *testing.T) {
	s := newSession(t, storeWith(), stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	_, err := s.Drop(graph.DropEvent{Type: ""}, testViewport)
	assert.ErrorIs(t, err, ErrDropIgnored)
}

func TestSession_OpenFailureDisablesEditing(t *testing.T) {
	store := storeWith()
	store.getErr = &apiclient.APIError{StatusCode: 500, Detail: "database down"}
	s := newSession(t, store, stuckRemote{})

	err := s.Open(context.Background(), 1)
	var lf *LoadFailure
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, int64(1), lf.WorkflowID)

	active := s.Notices().Active()
	require.Len(t, active, 1)
	assert.True(t, active[0].Blocking)
	assert.Equal(t, "Failed to load workflow: database down", active[0].Message)

	_, err = s.Drop(graph.DropEvent{Type: "default"}, testViewport)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.Save(context.Background()), ErrReadOnly)
}

func TestSession_EditBeforeOpen(t *testing.T) {
	s := newSession(t, storeWith(), stuckRemote{})
	_, err := s.Drop(graph.DropEvent{Type: "default"}, testViewport)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSession_SaveFailureKeepsEdits(t *testing.T) {
	store := storeWith(rawNode("n1", "input"))
	s := newSession(t, store, stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	_, err := s.Drop(graph.DropEvent{Type: "output"}, testViewport)
	require.NoError(t, err)

	store.replaceErr = errors.New("timeout")
	err = s.Save(context.Background())
	var sf *SaveFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 2, s.Model().Snapshot().Len())

	active := s.Notices().Active()
	require.Len(t, active, 1)
	assert.False(t, active[0].Blocking)
	assert.Equal(t, notice.KindError, active[0].Kind)

	store.replaceErr = nil
	require.NoError(t, s.Save(context.Background()))
	assert.Len(t, store.recs[1].Nodes, 2)
}

func TestSession_SelectThenEdit(t *testing.T) {
	s := newSession(t, storeWith(rawNode("a", "text_input"), rawNode("b", "text_input")), stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	require.NoError(t, s.Select("a"))
	require.NoError(t, s.Select("b"))
	require.NoError(t, s.Edit(flow.NodePatch{Text: flow.Ptr("edited")}))

	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.ID)
	text, _ := sel.Data.Text()
	assert.Equal(t, "edited", text)

	b, _ := s.Model().Snapshot().Node("b")
	text, _ = b.Data.Text()
	assert.Equal(t, "edited", text)

	a, _ := s.Model().Snapshot().Node("a")
	text, _ = a.Data.Text()
	assert.Empty(t, text)

	assert.ErrorIs(t, s.Select("ghost"), ErrUnknownNode)
	assert.ErrorIs(t, s.Edit(flow.NodePatch{Label: flow.Ptr("x")}), ErrNoSelection)
}

func TestSession_RemoveNodePrunesEdges(t *testing.T) {
	s := newSession(t, storeWith(rawNode("n1", "input"), rawNode("n2", "output")), stuckRemote{})
	require.NoError(t, s.Open(context.Background(), 1))

	require.NoError(t, s.RemoveNode("n2"))
	assert.Empty(t, s.Document().Edges)
	assert.ErrorIs(t, s.RemoveNode("n2"), ErrUnknownNode)
}

func TestSession_LaunchFailure(t *testing.T) {
	s := newSession(t, storeWith(rawNode("n1", "input")), stuckRemote{launchErr: errors.New("Workflow not found")})
	require.NoError(t, s.Open(context.Background(), 1))

	_, err := s.Run(context.Background())
	var lf *LaunchFailure
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, "launch", lf.Stage)

	n, _ := s.Model().Snapshot().Node("n1")
	assert.Equal(t, flow.NodeStatusPending, n.Data.Status)
	assert.Equal(t, execution.MsgStartFailed, n.Data.Error)
	assert.Equal(t, execution.StateSettled, s.State())
}

func TestSession_EndToEndAgainstDevServer(t *testing.T) {
	srv := devserver.NewServer(devserver.NewMemory(), devserver.Options{JWTSecret: []byte("k")})
	ts := httptest.NewServer(srv.Handler())
	defer srv.Close()
	defer ts.Close()

	ctx := context.Background()
	client := apiclient.New(apiclient.Options{BaseURL: ts.URL})
	tok, err := client.Register(ctx, "e2e@example.com", "pw")
	require.NoError(t, err)
	client.SetToken(tok)

	s := NewSession(Deps{
		Store:     client,
		Remote:    client,
		Execution: execution.Options{PollInterval: 10 * time.Millisecond, MaxPollFailures: 5},
	})
	defer s.Close()

	doc, err := s.Create(ctx, "e2e")
	require.NoError(t, err)
	assert.Equal(t, "e2e", doc.Name)

	in, err := s.Drop(graph.DropEvent{Type: "text_input"}, testViewport)
	require.NoError(t, err)
	out, err := s.Drop(graph.DropEvent{Type: "output"}, testViewport)
	require.NoError(t, err)
	_, err = s.Connect(graph.Connection{Source: in.ID, Target: out.ID})
	require.NoError(t, err)

	require.NoError(t, s.Select(in.ID))
	require.NoError(t, s.Edit(flow.NodePatch{Text: flow.Ptr("42")}))

	_, err = s.Run(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := s.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, flow.ExecutionCompleted, res.Status)

	snap := s.Model().Snapshot()
	for _, id := range []string{in.ID, out.ID} {
		n, ok := snap.Node(id)
		require.True(t, ok)
		assert.Equal(t, flow.NodeStatusCompleted, n.Data.Status, id)
		assert.Equal(t, "42", n.Data.Output, id)
	}

	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, flow.NodeStatusCompleted, sel.Data.Status)

	reopened := NewSession(Deps{Store: client, Remote: client})
	defer reopened.Close()
	require.NoError(t, reopened.Open(ctx, doc.ID))
	assert.Equal(t, 2, reopened.Model().Snapshot().Len())
	assert.Len(t, reopened.Document().Edges, 1)
}

func TestSession_OpenAnotherWorkflowStopsRun(t *testing.T) {
	store := storeWith(rawNode("dndnode_0", "text_input"))
	store.recs[2] = &flow.WorkflowRecord{ID: 2, Name: "other", Nodes: []flow.NodeRecord{rawNode("dndnode_0", "output")}}
	remote := &reportingRemote{results: map[string]any{"dndnode_0": "from workflow 1"}}
	s := NewSession(Deps{
		Store:     store,
		Remote:    remote,
		Notices:   notice.NewCenter(time.Hour),
		Execution: execution.Options{PollInterval: 5 * time.Millisecond},
	})
	t.Cleanup(s.Close)

	ctx := context.Background()
	require.NoError(t, s.Open(ctx, 1))
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return remote.fetches.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Open(ctx, 2))
	assert.Equal(t, execution.StateIdle, s.State())
	before := remote.fetches.Load()
	time.Sleep(40 * time.Millisecond)
	assert.LessOrEqual(t, remote.fetches.Load(), before+1)

	n, ok := s.Model().Snapshot().Node("dndnode_0")
	require.True(t, ok)
	assert.Equal(t, flow.NodeTypeOutput, n.Type)
	assert.Equal(t, flow.NodeStatusPending, n.Data.Status)
	assert.Nil(t, n.Data.Output)

	_, err = s.Wait(ctx)
	assert.ErrorIs(t, err, execution.ErrNoRun)
}

func TestSession_FailedOpenStopsRun(t *testing.T) {
	store := storeWith(rawNode("n1", "text_input"))
	remote := &reportingRemote{results: map[string]any{"n1": "x"}}
	s := NewSession(Deps{
		Store:     store,
		Remote:    remote,
		Notices:   notice.NewCenter(time.Hour),
		Execution: execution.Options{PollInterval: 5 * time.Millisecond},
	})
	t.Cleanup(s.Close)

	ctx := context.Background()
	require.NoError(t, s.Open(ctx, 1))
	_, err := s.Run(ctx)
	require.NoError(t, err)

	var lf *LoadFailure
	require.ErrorAs(t, s.Open(ctx, 99), &lf)
	before := remote.fetches.Load()
	time.Sleep(40 * time.Millisecond)
	assert.LessOrEqual(t, remote.fetches.Load(), before+1)
	assert.Equal(t, execution.StateIdle, s.State())
}

func TestSession_LogsCarrySessionID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newSession(t, storeWith(rawNode("n1", "input")), stuckRemote{launchErr: errors.New("down")})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx, 1))
	_, err := s.Run(ctx)
	require.Error(t, err)

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "workflow opened") || strings.Contains(line, "execution not started") {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "session="+s.ID())
	}
}
