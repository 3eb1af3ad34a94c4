package flowdef

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/script"
)

type (
	// Definition is a flow document
	Definition struct {
		Name        string        `yaml:"name"`
		Description string        `yaml:"description,omitempty"`
		MaxReentry  int           `yaml:"max_reentry,omitempty"`
		Concurrency int           `yaml:"concurrency,omitempty"`
		StepTimeout time.Duration `yaml:"step_timeout,omitempty"`
		FixedState  bool          `yaml:"fixed_state,omitempty"`
		State       api.Values    `yaml:"state,omitempty"`
		Steps       []*StepDef    `yaml:"steps"`
	}

	// StepDef describes one step. At most one trigger field may be set; a
	// step without one is a start step
	StepDef struct {
		Name      string        `yaml:"name"`
		Router    bool          `yaml:"router,omitempty"`
		On        string        `yaml:"on,omitempty"`
		All       []string      `yaml:"all,omitempty"`
		Any       []string      `yaml:"any,omitempty"`
		Route     *RouteDef     `yaml:"route,omitempty"`
		Failed    []string      `yaml:"failed,omitempty"`
		FailedAny bool          `yaml:"failed_any,omitempty"`
		Lua       string        `yaml:"lua,omitempty"`
		Ale       string        `yaml:"ale,omitempty"`
		Args      []string      `yaml:"args,omitempty"`
		Switch    string        `yaml:"switch,omitempty"`
		Reentry   int           `yaml:"reentry,omitempty"`
		Retries   int           `yaml:"retries,omitempty"`
		Timeout   time.Duration `yaml:"timeout,omitempty"`
	}

	// RouteDef selects the label a router must emit
	RouteDef struct {
		Router string `yaml:"router"`
		Label  string `yaml:"label"`
	}
)

var (
	ErrInvalidDefinition = errors.New("invalid flow definition")
	ErrReadDefinition    = errors.New("failed to read flow definition")
)

// Load reads and parses the flow document at path
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadDefinition, err)
	}
	return Parse(data)
}

// Parse decodes a flow document, rejecting unknown fields
func Parse(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the document structure. Graph rules are checked when the
// flow is built
func (d *Definition) Validate() error {
	if api.NormalizeName(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, d.Name)
	}
	for i, s := range d.Steps {
		if s == nil {
			return fmt.Errorf("%w: step %d is empty", ErrInvalidDefinition, i)
		}
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Seed returns a copy of the initial state values
func (d *Definition) Seed() api.Values {
	return d.State.Clone()
}

// Flow compiles the scripts and registers every step on a new Flow. The
// document's own settings are applied after opts
func (d *Definition) Flow(
	env *script.Env, opts ...flow.Option,
) (*flow.Flow, error) {
	f := flow.New(d.Name, slices.Concat(opts, d.options())...)
	for _, s := range d.Steps {
		step, err := s.build(env)
		if err != nil {
			return nil, err
		}
		if err := f.Register(step); err != nil {
			return nil, err
		}
	}
	if _, err := f.Build(); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Definition) options() []flow.Option {
	var opts []flow.Option
	if d.MaxReentry > 0 {
		opts = append(opts, flow.WithMaxReentry(d.MaxReentry))
	}
	if d.Concurrency > 0 {
		opts = append(opts, flow.WithConcurrency(d.Concurrency))
	}
	if d.StepTimeout > 0 {
		opts = append(opts, flow.WithStepTimeout(d.StepTimeout))
	}
	if d.FixedState {
		opts = append(opts, flow.WithShape(map[string]any(d.State.Clone())))
	}
	return opts
}

func (s *StepDef) validate() error {
	if api.NormalizeName(s.Name) == "" {
		return fmt.Errorf("%w: step name is required", ErrInvalidDefinition)
	}
	if n := s.triggerCount(); n > 1 {
		return fmt.Errorf("%w: step %s declares %d triggers",
			ErrInvalidDefinition, s.Name, n)
	}
	bodies := s.bodyCount()
	switch {
	case s.Switch != "" && !s.Router:
		return fmt.Errorf("%w: step %s uses switch but is not a router",
			ErrInvalidDefinition, s.Name)
	case bodies > 1:
		return fmt.Errorf("%w: step %s declares more than one of lua, ale "+
			"and switch", ErrInvalidDefinition, s.Name)
	case s.Router && bodies == 0:
		return fmt.Errorf("%w: router %s needs lua, ale or switch",
			ErrInvalidDefinition, s.Name)
	case bodies == 0:
		return fmt.Errorf("%w: step %s needs lua or ale",
			ErrInvalidDefinition, s.Name)
	case len(s.Args) > 0 && s.Ale == "":
		return fmt.Errorf("%w: step %s declares args without ale",
			ErrInvalidDefinition, s.Name)
	case s.Route != nil && (s.Route.Router == "" || s.Route.Label == ""):
		return fmt.Errorf("%w: step %s route needs router and label",
			ErrInvalidDefinition, s.Name)
	}
	return nil
}

func (s *StepDef) bodyCount() int {
	return countSet(s.Lua != "", s.Ale != "", s.Switch != "")
}

func (s *StepDef) triggerCount() int {
	return countSet(
		s.On != "", len(s.All) > 0, len(s.Any) > 0, s.Route != nil,
		len(s.Failed) > 0, s.FailedAny,
	)
}

func countSet(flags ...bool) int {
	count := 0
	for _, set := range flags {
		if set {
			count++
		}
	}
	return count
}

func (s *StepDef) build(env *script.Env) (*flow.Step, error) {
	fn, err := s.callable(env)
	if err != nil {
		return nil, fmt.Errorf("%w: step %s: %w",
			ErrInvalidDefinition, s.Name, err)
	}

	res := &flow.Step{
		Name:    api.StepName(s.Name),
		Kind:    api.TriggerStart,
		Trigger: s.condition(),
		Func:    fn,
		Reentry: s.Reentry,
		Timeout: s.Timeout,
	}
	switch {
	case s.Router:
		res.Kind = api.TriggerRouter
	case res.Trigger != nil:
		res.Kind = api.TriggerListen
	}
	if s.Retries > 0 {
		res.Retry = &flow.RetryPolicy{MaxRetries: s.Retries}
	}
	return res, nil
}

func (s *StepDef) callable(env *script.Env) (flow.StepFunc, error) {
	switch {
	case s.Switch != "":
		return flow.RouterStep(switchRouter(s.Switch)), nil
	case s.Ale != "" && s.Router:
		fn, err := env.Ale().Router(s.Ale, s.Args)
		if err != nil {
			return nil, err
		}
		return flow.RouterStep(fn), nil
	case s.Ale != "":
		return env.Ale().Step(s.Ale, s.Args)
	case s.Router:
		fn, err := env.Router(s.Lua)
		if err != nil {
			return nil, err
		}
		return flow.RouterStep(fn), nil
	default:
		return env.Step(s.Lua)
	}
}

func (s *StepDef) condition() *flow.Condition {
	switch {
	case s.On != "":
		return flow.On(api.StepName(s.On))
	case len(s.All) > 0:
		return flow.All(stepNames(s.All)...)
	case len(s.Any) > 0:
		return flow.Any(stepNames(s.Any)...)
	case s.Route != nil:
		return flow.Route(
			api.StepName(s.Route.Router), api.Label(s.Route.Label),
		)
	case len(s.Failed) > 0:
		sources := make([]flow.Source, 0, len(s.Failed))
		for _, name := range s.Failed {
			sources = append(sources, flow.Failure(api.StepName(name)))
		}
		return flow.AnyOf(sources...)
	case s.FailedAny:
		return flow.FailedAny()
	default:
		return nil
	}
}

// switchRouter emits the value found at path as the label. A missing value
// emits no label
func switchRouter(path string) flow.RouterFunc {
	return func(
		_ context.Context, st *flow.State, _ flow.Inputs,
	) (api.Label, error) {
		v, ok := st.Lookup(path)
		if !ok || v == nil {
			return "", nil
		}
		return api.Label(fmt.Sprint(v)), nil
	}
}

func stepNames(names []string) []api.StepName {
	res := make([]api.StepName, len(names))
	for i, n := range names {
		res[i] = api.StepName(n)
	}
	return res
}
