// Package devserver is a reference implementation of the remote workflow
// service: JWT-authenticated workflow storage plus a background executor
// that walks linear node chains.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures a Server.
type Options struct {
	JWTSecret []byte
	TokenTTL  time.Duration
	// StepDelay is slept before each node the simulator evaluates, so that
	// clients can observe intermediate RUNNING states.
	StepDelay time.Duration
	Generator Generator
}

type Server struct {
	repo Repository
	opts Options
	sim  *Simulator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a Server on top of repo.
func NewServer(repo Repository, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	if opts.Generator == nil {
		opts.Generator = EchoGenerator{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		repo:   repo,
		opts:   opts,
		sim:    NewSimulator(repo, opts.Generator, opts.StepDelay),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/token", s.token)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Route("/workflow", func(r chi.Router) {
			r.Get("/", s.listWorkflows)
			r.Post("/", s.createWorkflow)
			r.Get("/{id}", s.getWorkflow)
			r.Put("/{id}", s.replaceWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
		})
		r.Route("/execution", func(r chi.Router) {
			r.Post("/workflow/{id}", s.startExecution)
			r.Get("/workflow/{id}", s.listExecutions)
			r.Get("/{id}", s.getExecution)
		})
	})
	return r
}

// Wait blocks until all background executions have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close cancels background executions and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) goExecute(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// writeDetail writes the {"detail": ...} error envelope.
func writeDetail(w http.ResponseWriter, code int, detail any) {
	writeJSON(w, code, map[string]any{"detail": detail})
}

type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeValidation(w http.ResponseWriter, issues ...validationIssue) {
	writeDetail(w, http.StatusUnprocessableEntity, issues)
}
