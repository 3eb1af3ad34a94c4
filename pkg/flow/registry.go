package flow

import (
	"fmt"
	"slices"

	"github.com/kode4food/cascade/pkg/api"
)

// Registry holds the steps of one flow in registration order
type Registry struct {
	steps      []*Step
	byName     map[api.StepName]*Step
	maxReentry int
}

// NewRegistry creates an empty Registry. maxReentry is the re-entry limit
// for router cycle members that do not declare their own
func NewRegistry(maxReentry int) *Registry {
	return &Registry{
		byName:     map[api.StepName]*Step{},
		maxReentry: maxReentry,
	}
}

// Register adds a copy of the step. Step and source names are normalized
func (r *Registry) Register(s *Step) error {
	if s == nil {
		return fmt.Errorf("%w: step is nil", ErrInvalidStep)
	}
	step := s.clone()
	if err := step.validate(); err != nil {
		return err
	}
	if _, ok := r.byName[step.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, step.Name)
	}
	r.steps = append(r.steps, step)
	r.byName[step.Name] = step
	return nil
}

// Steps returns the registered steps in registration order
func (r *Registry) Steps() []*Step {
	return slices.Clone(r.steps)
}

// Len returns the number of registered steps
func (r *Registry) Len() int {
	return len(r.steps)
}

// Build validates the registrations and derives the execution graph. It has
// no side effects on the registry
func (r *Registry) Build() (*Graph, error) {
	g := newGraph(r.steps)

	if len(g.starts) == 0 {
		return nil, validationError(ErrNoStartSteps, "%d steps", len(r.steps))
	}
	if err := r.linkSources(g); err != nil {
		return nil, err
	}
	if cycle := findDirectCycle(g); cycle != nil {
		return nil, validationError(ErrCycle, "%s", joinNames(cycle, " -> "))
	}
	if err := r.bindReentry(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Registry) linkSources(g *Graph) error {
	for _, step := range r.steps {
		if step.Trigger == nil {
			continue
		}
		for _, src := range step.Trigger.Sources {
			if src.Step == api.AnyStep {
				if !src.Failure {
					return validationError(ErrInvalidSource,
						"step %q: wildcard source must be a failure source",
						step.Name)
				}
				g.anyFailure.Add(step.Name)
				continue
			}
			producer, ok := r.byName[src.Step]
			if !ok {
				return validationError(ErrUnknownStep,
					"step %q listens to %q", step.Name, src.Step)
			}
			if src.Label != "" {
				if src.Failure {
					return validationError(ErrInvalidSource,
						"step %q: failure source %q has a label",
						step.Name, src.Step)
				}
				if !producer.IsRouter() {
					return validationError(ErrLabelOnNonRouter,
						"step %q listens to %s", step.Name, src)
				}
			}
			g.addEdge(producer.Name, step.Name)
		}
	}
	return nil
}

func (r *Registry) bindReentry(g *Graph) error {
	for _, comp := range g.cycles() {
		for _, name := range comp {
			limit := r.byName[name].Reentry
			if limit == 0 {
				limit = r.maxReentry
			}
			if limit <= 0 {
				return validationError(ErrUnboundedCycle,
					"step %q in cycle %s", name, joinNames(comp, ", "))
			}
			g.reentry[name] = limit
		}
	}
	return nil
}
