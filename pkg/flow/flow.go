package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
)

type (
	// Runnable is the capability hosts depend on to launch a flow and
	// observe its runs
	Runnable interface {
		Name() string
		Kickoff(ctx context.Context, opts ...RunOption) (*Result, error)
		Subscribe(l events.Listener) *events.Subscription
	}

	// Describer is implemented by flows that can expose their graph
	Describer interface {
		Build() (*Graph, error)
	}

	// Flow is a named graph of steps that can be run any number of times
	Flow struct {
		name        string
		registry    *Registry
		bus         *events.Bus
		shape       *shape
		clock       Clock
		concurrency int
		stepTimeout time.Duration
		errs        []error
		mu          sync.Mutex
	}

	// Clock provides timestamps for events and snapshots
	Clock func() time.Time

	// Future is the handle of a run started with KickoffAsync
	Future struct {
		runID api.RunID
		done  chan struct{}
		res   *Result
		err   error
	}
)

var (
	_ Runnable  = (*Flow)(nil)
	_ Describer = (*Flow)(nil)
)

// New creates an empty Flow
func New(name string, opts ...Option) *Flow {
	f := &Flow{
		name:     api.NormalizeName(name),
		registry: NewRegistry(0),
		bus:      events.NewBus(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the flow name
func (f *Flow) Name() string {
	return f.name
}

// AddStep registers a start step
func (f *Flow) AddStep(
	name api.StepName, fn StepFunc, opts ...StepOption,
) error {
	return f.Register(newStep(name, api.TriggerStart, nil, fn, opts))
}

// AddListener registers a step triggered by cond
func (f *Flow) AddListener(
	name api.StepName, cond *Condition, fn StepFunc, opts ...StepOption,
) error {
	return f.Register(newStep(name, api.TriggerListen, cond, fn, opts))
}

// AddRouter registers a router triggered by cond. A nil cond makes the
// router a start step
func (f *Flow) AddRouter(
	name api.StepName, cond *Condition, fn RouterFunc, opts ...StepOption,
) error {
	var sf StepFunc
	if fn != nil {
		sf = RouterStep(fn)
	}
	return f.Register(newStep(name, api.TriggerRouter, cond, sf, opts))
}

// Register adds a fully described step
func (f *Flow) Register(s *Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registry.Register(s)
}

// Build validates the flow and returns its graph. Each call builds a new,
// structurally identical graph
func (f *Flow) Build() (*Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		return nil, errors.Join(f.errs...)
	}
	return f.registry.Build()
}

// Subscribe attaches a listener to every future run of the flow
func (f *Flow) Subscribe(l events.Listener) *events.Subscription {
	return f.bus.Subscribe(l)
}

// Kickoff builds the graph and executes one run to completion. The error
// is non-nil only when the run could not start. The run's own outcome,
// including step failures, is reported by the Result
func (f *Flow) Kickoff(ctx context.Context, opts ...RunOption) (*Result, error) {
	cfg := newRunConfig(opts)
	g, err := f.Build()
	if err != nil {
		return nil, err
	}
	r, err := f.newRun(ctx, g, cfg)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx), nil
}

// KickoffAsync starts a run in the background. The run ID is assigned
// before it returns
func (f *Flow) KickoffAsync(ctx context.Context, opts ...RunOption) *Future {
	cfg := newRunConfig(opts)
	id := cfg.resolveRunID()
	fut := &Future{
		runID: id,
		done:  make(chan struct{}),
	}
	opts = append(opts, WithRunID(id))
	go func() {
		defer close(fut.done)
		fut.res, fut.err = f.Kickoff(ctx, opts...)
	}()
	return fut
}

// RunID returns the identifier of the run
func (f *Future) RunID() api.RunID {
	return f.runID
}

// Done is closed when the run has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the run has finished
func (f *Future) Wait() (*Result, error) {
	<-f.done
	return f.res, f.err
}

func (f *Flow) newRun(
	ctx context.Context, g *Graph, cfg *runConfig,
) (*run, error) {
	id := cfg.resolveRunID()
	if cfg.resume != "" && cfg.runID != "" && cfg.resume != cfg.runID {
		return nil, fmt.Errorf("%w: run id %q does not match %q",
			ErrResume, cfg.runID, cfg.resume)
	}

	st, err := newState(id, f.shape, nil)
	if err != nil {
		return nil, err
	}
	rec := newRecord()

	if cfg.resume != "" {
		if cfg.store == nil {
			return nil, fmt.Errorf("%w: no store configured", ErrResume)
		}
		snap, err := cfg.store.Load(ctx, cfg.resume)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrResume, cfg.resume, err)
		}
		if err := st.restore(snap.Values, snap.Revision); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResume, err)
		}
		rec.outputs = snap.Outputs.Clone()
	}
	if err := st.restore(cfg.seed, st.Revision()); err != nil {
		return nil, err
	}

	bus := events.NewBus()
	bus.Subscribe(f.bus)
	for _, l := range cfg.listeners {
		bus.Subscribe(l)
	}

	return &run{
		flow:     f,
		graph:    g,
		eval:     &evaluator{graph: g},
		state:    st,
		rec:      rec,
		bus:      bus,
		store:    cfg.store,
		status:   api.FlowIdle,
		savedRev: st.Revision(),
	}, nil
}

func newStep(
	name api.StepName, kind api.TriggerKind, cond *Condition, fn StepFunc,
	opts []StepOption,
) *Step {
	s := &Step{
		Name:    name,
		Kind:    kind,
		Trigger: cond,
		Func:    fn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (c *runConfig) resolveRunID() api.RunID {
	switch {
	case c.resume != "":
		return c.resume
	case c.runID != "":
		return c.runID
	default:
		return api.RunID(uuid.NewString())
	}
}
