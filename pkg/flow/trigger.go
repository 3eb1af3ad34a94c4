package flow

import (
	"github.com/kode4food/cascade/pkg/api"
)

// evaluator decides which steps become eligible from what has fired
type evaluator struct {
	graph *Graph
}

// initial returns the start steps, eligible only at the first tick
func (e *evaluator) initial() []api.StepName {
	return e.graph.StartSteps()
}

// eligible returns the triggered steps whose condition is satisfied, in
// registration order. In-flight steps are never selected
func (e *evaluator) eligible(rec *record) []api.StepName {
	var res []api.StepName
	for _, s := range e.graph.steps {
		if s.Trigger == nil || rec.inFlight.Contains(s.Name) {
			continue
		}
		if e.satisfied(rec, s) {
			res = append(res, s.Name)
		}
	}
	return res
}

// satisfied reports whether enough of the step's sources have fired
func (e *evaluator) satisfied(rec *record, s *Step) bool {
	fired := rec.firedCount(s.Name)
	switch s.Trigger.Mode {
	case api.ModeAll:
		return fired == len(s.Trigger.Sources)
	case api.ModeAny:
		return fired > 0
	default:
		return false
	}
}

// completed fires the plain and labeled sources matching a completion
func (e *evaluator) completed(rec *record, step api.StepName, out any) {
	var label api.Label
	if e.graph.isRouter(step) {
		label = routerLabel(out)
	}
	for _, consumer := range e.graph.consumers[step] {
		cs, _ := e.graph.Step(consumer)
		for i, src := range cs.Trigger.Sources {
			if src.Failure || src.Step != step {
				continue
			}
			if src.Label != "" && src.Label != label {
				continue
			}
			rec.fire(consumer, i, firing{step: step, value: out})
		}
	}
}

// failed fires the failure sources matching a failure and reports how many
// listeners it leaves ready to run. Zero means nothing handles the failure,
// including when a handler still waits on other sources
func (e *evaluator) failed(rec *record, step api.StepName, err error) int {
	count := 0
	for _, cs := range e.graph.steps {
		if cs.Trigger == nil {
			continue
		}
		fired := false
		for i, src := range cs.Trigger.Sources {
			if !src.Failure || !e.matchesFailure(cs.Name, src.Step, step) {
				continue
			}
			rec.fire(cs.Name, i, firing{step: step, value: err})
			fired = true
		}
		if fired && e.satisfied(rec, cs) {
			count++
		}
	}
	return count
}

func (e *evaluator) matchesFailure(
	consumer, source, failed api.StepName,
) bool {
	if source == failed {
		return true
	}
	return source == api.AnyStep && consumer != failed &&
		!e.graph.anyFailure.Contains(failed)
}
