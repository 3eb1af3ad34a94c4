package flow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kode4food/cascade/pkg/api"
)

type (
	// StepFunc is the callable a step wraps. The State handle must not be
	// retained after the call returns
	StepFunc func(ctx context.Context, st *State, in Inputs) (any, error)

	// RouterFunc is the callable of a router step. The returned label
	// selects which labeled downstream sources fire
	RouterFunc func(ctx context.Context, st *State, in Inputs) (api.Label, error)

	// Inputs maps each fired source step to its output, or to its error for
	// failure sources
	Inputs map[api.StepName]any

	// Step is the static description of a registered step
	Step struct {
		Name    api.StepName
		Kind    api.TriggerKind
		Trigger *Condition
		Func    StepFunc
		Reentry int
		Retry   *RetryPolicy
		Timeout time.Duration
	}

	// RetryPolicy retries a failing step with exponential backoff
	RetryPolicy struct {
		MaxRetries  int
		Initial     time.Duration
		MaxInterval time.Duration
	}

	// StepOption configures a step at registration
	StepOption func(*Step)
)

const (
	DefaultRetryInitial     = 100 * time.Millisecond
	DefaultRetryMaxInterval = 10 * time.Second
)

// Reentry sets the maximum number of times a step in a router cycle may run
// again after its first run
func Reentry(n int) StepOption {
	return func(s *Step) {
		s.Reentry = n
	}
}

// Retry retries a failing step up to max additional times, starting with
// the initial delay and doubling it
func Retry(max int, initial time.Duration) StepOption {
	return func(s *Step) {
		s.Retry = &RetryPolicy{
			MaxRetries:  max,
			Initial:     initial,
			MaxInterval: DefaultRetryMaxInterval,
		}
	}
}

// Timeout bounds each invocation of the step. Steps observe it through their
// context
func Timeout(d time.Duration) StepOption {
	return func(s *Step) {
		s.Timeout = d
	}
}

// RouterStep adapts a RouterFunc to a StepFunc whose output is the label
func RouterStep(fn RouterFunc) StepFunc {
	return func(ctx context.Context, st *State, in Inputs) (any, error) {
		label, err := fn(ctx, st, in)
		if err != nil {
			return nil, err
		}
		return label, nil
	}
}

// IsStart reports whether the step runs at the beginning of a run
func (s *Step) IsStart() bool {
	return s.Trigger == nil
}

// IsRouter reports whether the step emits labels
func (s *Step) IsRouter() bool {
	return s.Kind == api.TriggerRouter
}

func (s *Step) validate() error {
	if !api.ValidName(s.Name) {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidStep, s.Name)
	}
	if s.Func == nil {
		return fmt.Errorf("%w: step %q has no function", ErrInvalidStep, s.Name)
	}
	if s.Reentry < 0 {
		return fmt.Errorf("%w: step %q has a negative re-entry limit",
			ErrInvalidStep, s.Name)
	}

	switch s.Kind {
	case api.TriggerStart:
		if s.Trigger != nil {
			return fmt.Errorf("%w: start step %q has a trigger",
				ErrInvalidStep, s.Name)
		}
	case api.TriggerListen:
		if s.Trigger == nil {
			return fmt.Errorf("%w: listener %q has no trigger",
				ErrInvalidStep, s.Name)
		}
	case api.TriggerRouter:
	default:
		return fmt.Errorf("%w: step %q has unknown kind %q",
			ErrInvalidStep, s.Name, s.Kind)
	}

	if s.Trigger == nil {
		return nil
	}
	if len(s.Trigger.Sources) == 0 {
		return fmt.Errorf("%w: step %q has an empty trigger",
			ErrInvalidStep, s.Name)
	}
	if s.Trigger.Mode != api.ModeAll && s.Trigger.Mode != api.ModeAny {
		return fmt.Errorf("%w: step %q has unknown mode %q",
			ErrInvalidStep, s.Name, s.Trigger.Mode)
	}
	return nil
}

func (s *Step) clone() *Step {
	res := *s
	res.Name = api.NormalizeName(s.Name)
	res.Trigger = s.Trigger.clone()
	if s.Retry != nil {
		r := *s.Retry
		res.Retry = &r
	}
	return &res
}

func (p *RetryPolicy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultRetryInitial
	}
	eb.MaxInterval = p.MaxInterval
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = DefaultRetryMaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0)))
}

// Get returns the input recorded for a source step
func (in Inputs) Get(name api.StepName) (any, bool) {
	v, ok := in[name]
	return v, ok
}

// Value returns the single input when exactly one source fired
func (in Inputs) Value() any {
	if len(in) != 1 {
		return nil
	}
	for _, v := range in {
		return v
	}
	return nil
}

// Err returns the failure recorded for a failure source step
func (in Inputs) Err(name api.StepName) error {
	if err, ok := in[name].(error); ok {
		return err
	}
	return nil
}

// Names returns the fired source steps in sorted order
func (in Inputs) Names() []api.StepName {
	return slices.Sorted(maps.Keys(in))
}
