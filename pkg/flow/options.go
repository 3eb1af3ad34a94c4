package flow

import (
	"maps"
	"time"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
	"github.com/kode4food/cascade/pkg/store"
)

type (
	// Option configures a Flow
	Option func(*Flow)

	// RunOption configures a single run
	RunOption func(*runConfig)

	runConfig struct {
		runID     api.RunID
		resume    api.RunID
		seed      api.Values
		store     store.Store
		listeners []events.Listener
	}
)

// WithMaxReentry sets the default re-entry limit of router cycle members
func WithMaxReentry(n int) Option {
	return func(f *Flow) {
		f.registry.maxReentry = n
	}
}

// WithConcurrency bounds how many steps of a tick run at once. Zero or less
// means unbounded
func WithConcurrency(n int) Option {
	return func(f *Flow) {
		f.concurrency = n
	}
}

// WithStepTimeout bounds steps that do not declare their own Timeout
func WithStepTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.stepTimeout = d
	}
}

// WithShape fixes the state keys to the JSON fields of proto, whose values
// become the defaults
func WithShape(proto any) Option {
	return func(f *Flow) {
		sh, err := newShape(proto)
		if err != nil {
			f.errs = append(f.errs, err)
			return
		}
		f.shape = sh
	}
}

// WithClock replaces the clock used for event timestamps
func WithClock(clock Clock) Option {
	return func(f *Flow) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithSeed provides initial state values
func WithSeed(seed api.Values) RunOption {
	return func(c *runConfig) {
		if c.seed == nil {
			c.seed = api.Values{}
		}
		maps.Copy(c.seed, seed)
	}
}

// WithRunID assigns the run identifier instead of generating one
func WithRunID(id api.RunID) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithResume continues from the snapshot saved for a previous run. It
// requires WithStore
func WithResume(id api.RunID) RunOption {
	return func(c *runConfig) {
		c.resume = id
	}
}

// WithStore saves a snapshot after every tick that changed the run
func WithStore(s store.Store) RunOption {
	return func(c *runConfig) {
		c.store = s
	}
}

// WithListener attaches a listener to this run only
func WithListener(l events.Listener) RunOption {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, l)
	}
}

func newRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
