// Package agentpipe provides a high-level façade over the runner, the
// pipeline catalog and the model providers. Most applications interact with
// this package by:
//  1. Creating a Client via New() with an explicit Config
//  2. Optionally registering additional pipeline definitions
//  3. Invoking pipelines by name asynchronously (Invoke) or synchronously (InvokeSync)
//
// Nothing in this package reads the environment; the CLI builds the Config.
package agentpipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/model/provider"
	"github.com/hupe1980/agentpipe/pipeline"
	"github.com/hupe1980/agentpipe/runner"
	"github.com/hupe1980/agentpipe/session"
)

// ErrEmptyQuery is returned when neither the caller nor the pipeline
// definition provides a query.
var ErrEmptyQuery = errors.New("query must not be empty")

// Config is the explicit configuration of a Client.
type Config struct {
	// Provider builds the default model for agents without one.
	Provider provider.Config

	// MaxModelCalls bounds model calls per run. 0 means unlimited.
	MaxModelCalls int

	// InitialState seeds every run.
	InitialState map[string]any
}

// Options configures the Client.
type Options struct {
	// Logger defaults to a NoOp logger.
	Logger logging.Logger

	// Catalog defaults to a copy of the built-in catalog.
	Catalog *pipeline.Catalog

	// SessionStore records every run of every pipeline. Defaults to an
	// in-memory store keeping the last 100 runs.
	SessionStore core.SessionStore

	// Model overrides the provider model, mainly for tests.
	Model model.Model

	// Models resolves per-agent model names in pipeline definitions.
	Models pipeline.ModelResolver

	// MaxConcurrentRuns limits runs executing at the same time. Further
	// invocations wait for a slot or their context. 0 means unlimited.
	MaxConcurrentRuns int

	// Callbacks are attached to every runner.
	Callbacks []runner.Callback
}

// Client runs named pipelines against a shared model and run store.
type Client struct {
	cfg   Config
	opts  Options
	model model.Model

	slots chan struct{}

	mu      sync.Mutex
	runners map[string]*runner.Runner
}

// New creates a Client. The provider model is constructed eagerly but
// checks its credentials only on first use, so listing or validating
// pipelines works without an API key.
func New(cfg Config, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Catalog == nil {
		c, err := pipeline.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in pipelines: %w", err)
		}
		opts.Catalog = c.Clone()
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore(func(o *session.InMemoryOptions) { o.MaxRuns = 100 })
	}

	m := opts.Model
	if m == nil {
		pc := cfg.Provider
		if pc.Logger == nil {
			pc.Logger = opts.Logger
		}
		var err error
		if m, err = provider.New(pc); err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:     cfg,
		opts:    opts,
		model:   m,
		runners: make(map[string]*runner.Runner),
	}
	if opts.MaxConcurrentRuns > 0 {
		c.slots = make(chan struct{}, opts.MaxConcurrentRuns)
	}
	return c, nil
}

// Model returns the default model.
func (c *Client) Model() model.Model { return c.model }

// Catalog returns the pipeline catalog.
func (c *Client) Catalog() *pipeline.Catalog { return c.opts.Catalog }

// SessionStore returns the store all runs are recorded in.
func (c *Client) SessionStore() core.SessionStore { return c.opts.SessionStore }

// Register adds a pipeline definition to the catalog.
func (c *Client) Register(def *pipeline.Definition) error {
	return c.opts.Catalog.Add(def)
}

// Definition returns the named pipeline definition.
func (c *Client) Definition(name string) (*pipeline.Definition, error) {
	return c.opts.Catalog.Get(name)
}

// Runner returns the runner of the named pipeline, building and validating
// it on first use.
func (c *Client) Runner(name string) (*runner.Runner, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.runners[name]; ok {
		return r, nil
	}

	def, err := c.opts.Catalog.Get(name)
	if err != nil {
		return nil, err
	}

	root, err := pipeline.Build(def, func(o *pipeline.BuildOptions) {
		o.Models = c.opts.Models
	})
	if err != nil {
		return nil, err
	}

	r, err := runner.New(root, runner.Config{
		DefaultModel:  c.model,
		InitialState:  c.cfg.InitialState,
		MaxModelCalls: c.cfg.MaxModelCalls,
	}, func(o *runner.Options) {
		o.Logger = c.opts.Logger
		o.SessionStore = c.opts.SessionStore
		o.OutputKey = def.Output
		o.Callbacks = c.opts.Callbacks
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", name, err)
	}

	c.runners[name] = r
	return r, nil
}

// Validate builds the named pipeline and runs the static checks.
func (c *Client) Validate(name string) error {
	_, err := c.Runner(name)
	return err
}

// Describe renders the tree of the named pipeline.
func (c *Client) Describe(name string) (string, error) {
	r, err := c.Runner(name)
	if err != nil {
		return "", err
	}
	return agent.Describe(r.Root()), nil
}

// Invoke starts an asynchronous run of the named pipeline. An empty query
// falls back to the definition's default query. The events channel is
// closed when the run ends; the error channel then yields at most one
// error.
func (c *Client) Invoke(ctx context.Context, name, query string) (string, <-chan core.Event, <-chan error, error) {
	r, query, err := c.prepare(name, query)
	if err != nil {
		return "", nil, nil, err
	}

	if err := c.acquire(ctx); err != nil {
		return "", nil, nil, err
	}

	runID, events, errs := r.Stream(ctx, query)
	if c.slots == nil {
		return runID, events, errs, nil
	}

	out := make(chan core.Event, cap(events))
	outErr := make(chan error, 1)
	go func() {
		defer close(outErr)

		// After cancellation the remaining events are dropped so the run can
		// finish and give its slot back even if nobody reads out.
		forward := true
		for ev := range events {
			if !forward {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				forward = false
			}
		}
		err := <-errs

		c.release()
		close(out)
		if err != nil {
			outErr <- err
		}
	}()
	return runID, out, outErr, nil
}

// InvokeSync runs the named pipeline and waits for the result. On failure
// the returned Result still holds the events collected so far.
func (c *Client) InvokeSync(ctx context.Context, name, query string) (*runner.Result, error) {
	r, query, err := c.prepare(name, query)
	if err != nil {
		return nil, err
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	return r.Run(ctx, query)
}

// Cancel stops an active run of any pipeline.
func (c *Client) Cancel(runID string) error {
	c.mu.Lock()
	runners := make([]*runner.Runner, 0, len(c.runners))
	for _, r := range c.runners {
		runners = append(runners, r)
	}
	c.mu.Unlock()

	for _, r := range runners {
		err := r.Cancel(runID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, runner.ErrRunNotFound) {
			return err
		}
	}
	return fmt.Errorf("%w: %s", runner.ErrRunNotFound, runID)
}

// Session returns the recorded run.
func (c *Client) Session(runID string) (*core.Session, error) {
	return c.opts.SessionStore.Get(runID)
}

func (c *Client) prepare(name, query string) (*runner.Runner, string, error) {
	r, err := c.Runner(name)
	if err != nil {
		return nil, "", err
	}
	if query == "" {
		def, err := c.opts.Catalog.Get(name)
		if err != nil {
			return nil, "", err
		}
		query = def.Query
	}
	if query == "" {
		return nil, "", fmt.Errorf("pipeline %s: %w", name, ErrEmptyQuery)
	}
	return r, query, nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.slots == nil {
		return nil
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.slots != nil {
		<-c.slots
	}
}
