package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/session"
)

var (
	// ErrNoDefaultModel is returned by New when an agent has no model and
	// Config.DefaultModel is nil.
	ErrNoDefaultModel = errors.New("no default model")

	// ErrRunNotFound is returned by Cancel for unknown or finished runs.
	ErrRunNotFound = errors.New("run not found")
)

// Config is the explicit run configuration. The runner never reads the
// environment.
type Config struct {
	// DefaultModel is used by agents declared without a model.
	DefaultModel model.Model

	// InitialState seeds the state of every run. Its keys count as
	// available for instruction templates.
	InitialState map[string]any

	// MaxModelCalls bounds model calls per run. 0 means unlimited.
	MaxModelCalls int
}

// Options configures a Runner.
type Options struct {
	// Logger defaults to a NoOp logger.
	Logger logging.Logger

	// EventBufferSize sets the buffer of the internal event channels.
	EventBufferSize int

	// SessionStore records every run. Defaults to an in-memory store.
	SessionStore core.SessionStore

	// OutputKey names the state key holding the run's final output. When
	// empty, the last written key is used.
	OutputKey string

	// Callbacks are executed at run lifecycle points.
	Callbacks []Callback
}

// Runner executes one pipeline tree. It is safe for concurrent use; every
// run gets its own state.
type Runner struct {
	root      agent.Node
	cfg       Config
	logger    logging.Logger
	bufSize   int
	store     core.SessionStore
	outputKey string
	callbacks *CallbackManager

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// New validates root and creates a Runner.
func New(root agent.Node, cfg Config, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		EventBufferSize: 100,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	seedKeys := slices.Sorted(maps.Keys(cfg.InitialState))
	if err := agent.Validate(root, seedKeys...); err != nil {
		return nil, err
	}

	if unbound := agent.UnboundAgents(root); len(unbound) > 0 {
		if cfg.DefaultModel == nil {
			names := make([]string, 0, len(unbound))
			for _, a := range unbound {
				names = append(names, a.Name())
			}
			return nil, fmt.Errorf("%w: agents without model: %s", ErrNoDefaultModel, strings.Join(names, ", "))
		}
		agent.BindDefaultModel(root, cfg.DefaultModel)
	}

	return &Runner{
		root:      root,
		cfg:       cfg,
		logger:    logging.Scoped(opts.Logger, "runner"),
		bufSize:   opts.EventBufferSize,
		store:     opts.SessionStore,
		outputKey: opts.OutputKey,
		callbacks: NewCallbackManager(opts.Callbacks...),
		active:    make(map[string]context.CancelFunc),
	}, nil
}

// Root returns the pipeline tree.
func (r *Runner) Root() agent.Node { return r.root }

// SessionStore returns the store runs are recorded in.
func (r *Runner) SessionStore() core.SessionStore { return r.store }

type run struct {
	id     string
	query  string
	state  *core.State
	events <-chan core.Event
	errs   <-chan error
}

// Stream starts a run asynchronously. The events channel delivers the user
// event followed by every step event and is closed when the run ends; the
// error channel then yields at most one fatal error and is closed.
func (r *Runner) Stream(ctx context.Context, query string) (string, <-chan core.Event, <-chan error) {
	rn := r.start(ctx, query)
	return rn.id, rn.events, rn.errs
}

// Run executes the pipeline synchronously. On failure the returned Result
// still holds the events collected so far.
func (r *Runner) Run(ctx context.Context, query string) (*Result, error) {
	rn := r.start(ctx, query)

	res := &Result{RunID: rn.id, Query: query, State: rn.state, outputKey: r.outputKey}
	for ev := range rn.events {
		res.Events = append(res.Events, ev)
	}

	if err := <-rn.errs; err != nil {
		return res, err
	}
	return res, nil
}

// Cancel stops an active run.
func (r *Runner) Cancel(runID string) error {
	r.activeMu.Lock()
	cancel, ok := r.active[runID]
	r.activeMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()
	r.logger.Info("runner.run.cancel", "run_id", runID)
	return nil
}

func (r *Runner) start(ctx context.Context, query string) *run {
	runID := core.NewID()
	events := make(chan core.Event, r.bufSize)
	errs := make(chan error, 1)
	state := core.NewState(r.cfg.InitialState)

	rn := &run{id: runID, query: query, state: state, events: events, errs: errs}

	if _, err := r.store.Create(runID, query); err != nil {
		errs <- fmt.Errorf("failed to create run record: %w", err)
		close(events)
		close(errs)
		return rn
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.activeMu.Lock()
	r.active[runID] = cancel
	r.activeMu.Unlock()

	logger := r.logger
	if pl, ok := logger.(*logging.PipeLogger); ok {
		logger = pl.WithRun(runID)
	}

	emit := make(chan core.Event, r.bufSize)
	userContent := core.NewTextContent("user", query)
	rc := core.NewRunContext(runCtx, runID, userContent, emit, state, r.cfg.MaxModelCalls, logger)

	go func() {
		defer func() {
			cancel()
			r.activeMu.Lock()
			delete(r.active, runID)
			r.activeMu.Unlock()
			close(events)
			close(errs)
		}()

		start := time.Now()
		logger.Info("runner.run.start", "run_id", runID, "root", r.root.Name())

		cbCtx := &CallbackContext{RunID: runID, Query: query}
		if err := r.callbacks.ExecuteCallbacks(runCtx, CallbackBeforeRun, cbCtx); err != nil {
			r.finish(runCtx, runID, query, err, logger, start)
			errs <- err
			return
		}

		execErr := make(chan error, 1)
		go func() {
			defer close(emit)
			if err := rc.EmitEvent(core.NewUserMessageEvent(runID, query)); err != nil {
				execErr <- err
				return
			}
			_, err := agent.Execute(rc, r.root)
			execErr <- err
		}()

		forwardErr := r.forward(runCtx, runID, query, emit, events, cancel)

		err := <-execErr
		if forwardErr != nil {
			err = forwardErr
		}

		if err = r.finish(runCtx, runID, query, err, logger, start); err != nil {
			errs <- err
		}
	}()

	return rn
}

// forward records and delivers events until emit is closed. A failing
// state change callback cancels the run and is returned.
func (r *Runner) forward(
	ctx context.Context,
	runID, query string,
	emit <-chan core.Event,
	events chan<- core.Event,
	cancel context.CancelFunc,
) error {
	var cbErr error
	for ev := range emit {
		if cbErr != nil {
			continue
		}

		cbCtx := &CallbackContext{RunID: runID, Query: query, Event: &ev}
		if len(ev.Actions.StateDelta) > 0 {
			if err := r.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, cbCtx); err != nil {
				cbErr = err
				cancel()
				continue
			}
		}
		if err := r.callbacks.ExecuteCallbacks(ctx, CallbackOnEvent, cbCtx); err != nil {
			r.logger.Warn("runner.callback.error", "run_id", runID, "error", err.Error())
		}

		if !ev.IsPartial() {
			if err := r.store.AppendEvent(runID, ev); err != nil {
				r.logger.Warn("runner.store.append_failed", "run_id", runID, "error", err.Error())
			}
		}

		select {
		case <-ctx.Done():
		case events <- ev:
		}
	}
	return cbErr
}

// finish records the terminal status and runs the closing callbacks. It
// returns the error to report to the caller.
func (r *Runner) finish(ctx context.Context, runID, query string, err error, logger logging.Logger, start time.Time) error {
	status := core.SessionSucceeded
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = core.SessionCancelled
	default:
		status = core.SessionFailed
	}

	if storeErr := r.store.Finish(runID, status, err); storeErr != nil {
		logger.Warn("runner.store.finish_failed", "run_id", runID, "error", storeErr.Error())
	}

	cbCtx := &CallbackContext{RunID: runID, Query: query, Err: err}
	if err != nil {
		_ = r.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, cbCtx)
		logger.Error("runner.run.failed", "run_id", runID, "status", string(status), "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return err
	}

	if cbErr := r.callbacks.ExecuteCallbacks(ctx, CallbackAfterRun, cbCtx); cbErr != nil {
		return cbErr
	}

	logger.Info("runner.run.complete", "run_id", runID, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
