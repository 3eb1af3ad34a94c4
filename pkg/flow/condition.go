package flow

import (
	"strings"

	"github.com/kode4food/cascade/pkg/api"
)

type (
	// Condition is the trigger of a listener or triggered router. In ModeAll
	// every source must fire after the step last started, in ModeAny one is
	// enough
	Condition struct {
		Mode    api.Mode
		Sources []Source
	}

	// Source is one input to a Condition. A plain source fires when Step
	// completes, a labeled source fires when router Step emits Label, and a
	// failure source fires when Step fails
	Source struct {
		Step    api.StepName
		Label   api.Label
		Failure bool
	}
)

// Output is a source that fires when step completes
func Output(step api.StepName) Source {
	return Source{Step: step}
}

// Label is a source that fires when router emits label
func Label(router api.StepName, label api.Label) Source {
	return Source{Step: router, Label: label}
}

// Failure is a source that fires when step fails. api.AnyStep matches a
// failure of any step that is not itself listening for any failure
func Failure(step api.StepName) Source {
	return Source{Step: step, Failure: true}
}

// On triggers when step completes
func On(step api.StepName) *Condition {
	return All(step)
}

// All triggers once every step has completed since the last run
func All(steps ...api.StepName) *Condition {
	return AllOf(outputs(steps)...)
}

// Any triggers as soon as one of the steps completes
func Any(steps ...api.StepName) *Condition {
	return AnyOf(outputs(steps)...)
}

// Route triggers when router emits label
func Route(router api.StepName, label api.Label) *Condition {
	return AllOf(Label(router, label))
}

// Failed triggers when step fails
func Failed(step api.StepName) *Condition {
	return AllOf(Failure(step))
}

// FailedAny triggers when any other step fails
func FailedAny() *Condition {
	return AllOf(Failure(api.AnyStep))
}

func AllOf(sources ...Source) *Condition {
	return &Condition{Mode: api.ModeAll, Sources: sources}
}

func AnyOf(sources ...Source) *Condition {
	return &Condition{Mode: api.ModeAny, Sources: sources}
}

func (s Source) String() string {
	switch {
	case s.Failure:
		return "!" + string(s.Step)
	case s.Label != "":
		return string(s.Step) + ":" + string(s.Label)
	default:
		return string(s.Step)
	}
}

func (c *Condition) String() string {
	parts := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		parts[i] = s.String()
	}
	return string(c.Mode) + "(" + strings.Join(parts, ", ") + ")"
}

func (c *Condition) clone() *Condition {
	if c == nil {
		return nil
	}
	res := &Condition{Mode: c.Mode, Sources: make([]Source, len(c.Sources))}
	for i, s := range c.Sources {
		s.Step = normalizeSource(s.Step)
		s.Label = api.NormalizeName(s.Label)
		res.Sources[i] = s
	}
	return res
}

func normalizeSource(name api.StepName) api.StepName {
	if name == api.AnyStep {
		return name
	}
	return api.NormalizeName(name)
}

func outputs(steps []api.StepName) []Source {
	res := make([]Source, len(steps))
	for i, s := range steps {
		res[i] = Output(s)
	}
	return res
}
