// Package execution launches remote runs of a workflow and merges their
// progress into the graph model.
package execution

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/flow/ports"
	"github.com/soochol/flowboard/internal/graph"
)

// Messages written into node errors.
const (
	MsgStartFailed     = "Failed to start execution"
	MsgExecutionFailed = "Execution failed"
	MsgLostContact     = "Lost contact with execution"
)

const DefaultPollInterval = time.Second

// State is the coordinator's position in the run lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateSaving    State = "saving"
	StateLaunching State = "launching"
	StatePolling   State = "polling"
	StateSettled   State = "settled"
)

// SaveFunc writes the current graph to the remote store.
type SaveFunc func(ctx context.Context) error

type Options struct {
	PollInterval time.Duration
	// MaxPollFailures abandons a run after this many consecutive failed
	// fetches. Zero retries forever.
	MaxPollFailures int
	// OnSettle is called once per run that reaches StateSettled.
	OnSettle func(Result)
	// Logger receives run events; nil uses slog.Default.
	Logger *slog.Logger
}

// Result is the outcome of one run.
type Result struct {
	ExecutionID int64
	// Status is the terminal remote status, empty when none was observed.
	Status flow.ExecutionStatus
	// Err is a *LaunchError, a *PollError, ErrSuperseded or ErrClosed. A
	// remote FAILED status is not an error.
	Err error
}

type run struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	result Result
}

func (r *run) finish(res Result) bool {
	first := false
	r.once.Do(func() {
		r.result = res
		close(r.done)
		first = true
	})
	return first
}

// Coordinator drives at most one run at a time. Starting a run cancels the
// previous one; results of a cancelled run are discarded.
type Coordinator struct {
	model  *graph.Model
	remote ports.ExecutionRemote
	save   SaveFunc
	opts   Options

	base     context.Context
	shutdown context.CancelFunc

	mu     sync.Mutex
	state  State
	gen    uint64
	cur    *run
	closed bool
}

func NewCoordinator(model *graph.Model, remote ports.ExecutionRemote, save SaveFunc, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Coordinator{
		model:    model,
		remote:   remote,
		save:     save,
		opts:     opts,
		base:     base,
		shutdown: shutdown,
		state:    StateIdle,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run saves the graph, launches workflowID and starts polling in the
// background. It returns once polling has started, or with a *LaunchError
// after the nodes have been reset to pending with MsgStartFailed. ctx
// bounds the save and launch requests only; polling lasts until the run
// settles, is superseded, or the coordinator is closed.
func (c *Coordinator) Run(ctx context.Context, workflowID int64) (int64, error) {
	opCtx, opCancel := context.WithCancel(ctx)
	defer opCancel()
	taskCtx, taskCancel := context.WithCancel(c.base)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		taskCancel()
		return 0, ErrClosed
	}
	if prev := c.cur; prev != nil {
		prev.cancel()
		prev.finish(Result{Err: ErrSuperseded})
	}
	c.gen++
	r := &run{
		gen: c.gen,
		cancel: func() {
			opCancel()
			taskCancel()
		},
		done: make(chan struct{}),
	}
	c.cur = r
	c.state = StateSaving
	c.mu.Unlock()

	log := c.opts.Logger.With("workflow_id", workflowID, "run", r.gen)
	log.Debug("saving before run")
	if err := c.save(opCtx); err != nil {
		return 0, c.failStart(r, "save", err)
	}

	if !c.withCurrent(r, func() {
		c.model.Apply(func(flow.Node) (flow.NodePatch, bool) {
			return flow.ResetPatch(flow.NodeStatusPending, ""), true
		})
		c.state = StateLaunching
	}) {
		return 0, c.staleErr()
	}

	resp, err := c.remote.StartExecution(opCtx, workflowID)
	if err == nil && resp == nil {
		err = errEmptyExecution
	}
	if err != nil {
		return 0, c.failStart(r, "launch", err)
	}

	execID := resp.ExecutionID
	if !c.withCurrent(r, func() {
		c.model.Apply(func(flow.Node) (flow.NodePatch, bool) {
			return flow.NodePatch{Status: flow.Ptr(flow.NodeStatusRunning)}, true
		})
		c.state = StatePolling
	}) {
		return 0, c.staleErr()
	}
	log.Info("execution started", "execution_id", execID)

	go c.poll(taskCtx, r, execID)
	return execID, nil
}

// Wait blocks until the latest run settles, is superseded or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return Result{}, ErrNoRun
	}
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close cancels the live run, if any. Further runs are refused.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	r := c.cur
	c.mu.Unlock()
	if r != nil {
		r.cancel()
		r.finish(Result{Err: ErrClosed})
	}
	c.shutdown()
}

// Cancel stops the live run, if any, and returns to StateIdle. The run
// finishes with ErrSuperseded. Unlike Close, later runs are allowed.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	r := c.cur
	if r == nil {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.state = StateIdle
	c.mu.Unlock()

	r.cancel()
	r.finish(Result{Err: ErrSuperseded})
	c.opts.Logger.Debug("run cancelled", "run", r.gen)
}

// withCurrent runs fn under the coordinator lock if r is still the live
// run. It reports whether fn ran.
func (c *Coordinator) withCurrent(r *run, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != r || c.closed {
		return false
	}
	fn()
	return true
}

// staleErr explains why a run lost its claim on the model.
func (c *Coordinator) staleErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return ErrSuperseded
}

func (c *Coordinator) failStart(r *run, stage string, err error) error {
	lerr := &LaunchError{Stage: stage, Err: err}
	if !c.withCurrent(r, func() {
		c.model.Apply(func(flow.Node) (flow.NodePatch, bool) {
			return flow.ResetPatch(flow.NodeStatusPending, MsgStartFailed), true
		})
		c.state = StateSettled
	}) {
		return c.staleErr()
	}
	c.opts.Logger.Warn("execution not started", "stage", stage, "err", err)
	r.cancel()
	c.settle(r, Result{Err: lerr})
	return lerr
}

func (c *Coordinator) settle(r *run, res Result) {
	if r.finish(res) && c.opts.OnSettle != nil {
		c.opts.OnSettle(res)
	}
}

// poll fetches the execution every PollInterval until it settles. Ticks
// are sequential: a slow fetch delays the next one.
func (c *Coordinator) poll(ctx context.Context, r *run, execID int64) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec, err := c.remote.GetExecution(ctx, execID)
		if ctx.Err() != nil {
			return
		}
		if err == nil && rec == nil {
			err = errEmptyExecution
		}
		if err != nil {
			failures++
			c.opts.Logger.Warn("poll execution failed", "execution_id", execID, "failures", failures, "err", err)
			if c.opts.MaxPollFailures > 0 && failures >= c.opts.MaxPollFailures {
				c.abandon(r, execID, &PollError{ExecutionID: execID, Failures: failures, Err: err})
				return
			}
			continue
		}
		failures = 0
		if c.merge(r, execID, rec) {
			return
		}
	}
}

// merge applies one fetched record to the model and reports whether
// polling should stop.
func (c *Coordinator) merge(r *run, execID int64, rec *flow.ExecutionRecord) bool {
	var settled *Result
	ok := c.withCurrent(r, func() {
		switch rec.Status {
		case flow.ExecutionCompleted:
			c.model.Apply(func(n flow.Node) (flow.NodePatch, bool) {
				out, _ := rec.Result(n.ID)
				return flow.NodePatch{
					Status: flow.Ptr(flow.NodeStatusCompleted),
					Output: flow.Ptr(out),
					Error:  flow.Ptr(""),
				}, true
			})
			c.state = StateSettled
			settled = &Result{ExecutionID: execID, Status: rec.Status}

		case flow.ExecutionFailed:
			msg, ok := rec.ErrorMessage()
			if !ok {
				msg = MsgExecutionFailed
			}
			c.model.Apply(func(flow.Node) (flow.NodePatch, bool) {
				return flow.ResetPatch(flow.NodeStatusFailed, msg), true
			})
			c.state = StateSettled
			settled = &Result{ExecutionID: execID, Status: rec.Status}

		default:
			if rec.Status != flow.ExecutionRunning && rec.Status != flow.ExecutionPending {
				c.opts.Logger.Warn("unknown execution status", "execution_id", execID, "status", rec.Status)
			}
			c.model.Apply(func(n flow.Node) (flow.NodePatch, bool) {
				out, ok := rec.Result(n.ID)
				if !ok || n.Data.Status == flow.NodeStatusFailed {
					return flow.NodePatch{}, false
				}
				if n.Data.Status == flow.NodeStatusCompleted && reflect.DeepEqual(n.Data.Output, out) {
					return flow.NodePatch{}, false
				}
				return flow.NodePatch{
					Status: flow.Ptr(flow.NodeStatusCompleted),
					Output: flow.Ptr(out),
					Error:  flow.Ptr(""),
				}, true
			})
		}
	})
	if !ok {
		return true
	}
	if settled != nil {
		c.opts.Logger.Info("execution settled", "execution_id", execID, "status", settled.Status)
		r.cancel()
		c.settle(r, *settled)
		return true
	}
	return false
}

// abandon gives up on a run whose status can no longer be fetched. Nodes
// still running are failed; completed nodes keep their results.
func (c *Coordinator) abandon(r *run, execID int64, perr *PollError) {
	if !c.withCurrent(r, func() {
		c.model.Apply(func(n flow.Node) (flow.NodePatch, bool) {
			if n.Data.Status != flow.NodeStatusRunning {
				return flow.NodePatch{}, false
			}
			return flow.NodePatch{Status: flow.Ptr(flow.NodeStatusFailed), Error: flow.Ptr(MsgLostContact)}, true
		})
		c.state = StateSettled
	}) {
		return
	}
	c.opts.Logger.Error("execution abandoned", "execution_id", execID, "err", perr)
	r.cancel()
	c.settle(r, Result{ExecutionID: execID, Err: perr})
}
