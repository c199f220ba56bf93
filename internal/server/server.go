// Package server exposes pipelines over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"

	"github.com/hupe1980/agentpipe"
	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/pipeline"
	"github.com/hupe1980/agentpipe/runner"
)

// Options configures the Server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       logging.Logger
	Version      string
}

// Server serves the pipelines of a client.
type Server struct {
	client *agentpipe.Client
	opts   Options
	logger logging.Logger
	router *mux.Router
}

// APIResponse is the envelope of every response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunRequest is the body of a run request.
type RunRequest struct {
	Query string `json:"query"`
	// Async returns immediately with the run id.
	Async bool `json:"async"`
	// Events includes the step events in the response.
	Events bool `json:"events"`
}

// RunResponse describes a finished run.
type RunResponse struct {
	RunID  string       `json:"run_id"`
	Query  string       `json:"query"`
	Output string       `json:"output"`
	State  *core.State  `json:"state,omitempty"`
	Events []core.Event `json:"events,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// PipelineInfo describes a catalog entry.
type PipelineInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Query       string `json:"query,omitempty"`
	Output      string `json:"output,omitempty"`
	Tree        string `json:"tree,omitempty"`
	Error       string `json:"error,omitempty"`
}

// New creates a Server.
func New(client *agentpipe.Client, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		Logger:       logging.NoOpLogger{},
		Version:      "dev",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		client: client,
		opts:   opts,
		logger: logging.Scoped(opts.Logger, "server"),
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pipelines", s.handleListPipelines).Methods(http.MethodGet)
	api.HandleFunc("/pipelines/{name}", s.handleGetPipeline).Methods(http.MethodGet)
	api.HandleFunc("/pipelines/{name}/runs", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleCancelRun).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.start", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("server.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("server.panic", "path", r.URL.Path, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.opts.Version,
	})
}

func (s *Server) handleListPipelines(w http.ResponseWriter, _ *http.Request) {
	names := s.client.Catalog().Names()
	out := make([]PipelineInfo, 0, len(names))
	for _, name := range names {
		info, err := s.pipelineInfo(name)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, info)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipelineInfo(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) pipelineInfo(name string) (PipelineInfo, error) {
	def, err := s.client.Definition(name)
	if err != nil {
		return PipelineInfo{}, err
	}
	info := PipelineInfo{Name: def.Name, Description: def.Description, Query: def.Query, Output: def.Output}
	if tree, err := s.client.Describe(name); err != nil {
		info.Error = err.Error()
	} else {
		info.Tree = tree
	}
	return info, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	if req.Async {
		s.startAsync(w, r, name, req)
		return
	}

	res, err := s.client.InvokeSync(r.Context(), name, req.Query)
	if err != nil && res == nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	resp := RunResponse{RunID: res.RunID, Query: res.Query, Output: res.Text(), State: res.State}
	if req.Events {
		resp.Events = res.Events
	}
	if err != nil {
		resp.Error = err.Error()
		s.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startAsync(w http.ResponseWriter, r *http.Request, name string, req RunRequest) {
	runID, events, errs, err := s.client.Invoke(context.WithoutCancel(r.Context()), name, req.Query)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	go func() {
		for range events {
		}
		if err := <-errs; err != nil {
			s.logger.Warn("server.run.failed", "run_id", runID, "error", err.Error())
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID, "status": core.SessionRunning})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.client.SessionStore().List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"id":      sess.ID,
			"query":   sess.Query,
			"status":  sess.Status,
			"created": sess.Created,
			"events":  len(sess.Events),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	sess, err := s.client.Session(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.client.Cancel(id); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"run_id": id, "status": "cancelling"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrPipelineNotFound),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, runner.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrInvalidPipeline),
		errors.Is(err, runner.ErrNoDefaultModel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, agentpipe.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	s.writeResponse(w, status, APIResponse{Success: status < 400, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeResponse(w, status, APIResponse{Success: false, Error: message})
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("server.encode.failed", "error", err.Error())
	}
}
