package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
	"github.com/kode4food/cascade/pkg/log"
	"github.com/kode4food/cascade/pkg/store"
)

type (
	// run is a single execution of a graph. All fields are owned by the
	// goroutine calling execute; step goroutines only touch state
	run struct {
		flow       *Flow
		graph      *Graph
		eval       *evaluator
		state      *State
		rec        *record
		bus        *events.Bus
		store      store.Store
		status     api.FlowStatus
		stepCtx    context.Context
		cancel     context.CancelFunc
		err        error
		failedStep api.StepName
		savedRev   uint64
		dirty      bool
	}

	completion struct {
		step api.StepName
		out  any
		err  error
	}
)

func (r *run) execute(ctx context.Context) *Result {
	r.stepCtx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()

	r.transition(api.FlowRunning)
	slog.Info("Flow started",
		log.FlowName(r.flow.name),
		log.RunID(r.state.RunID()),
		log.Revision(r.state.Revision()))
	r.emit(api.EventTypeFlowStarted, "", "", nil)

	ready := r.eval.initial()
	for len(ready) > 0 && ctx.Err() == nil {
		if err := r.checkReentry(ready); err != nil {
			break
		}
		r.tick(ready)
		r.persistChanges(ctx)
		if r.err != nil {
			break
		}
		ready = r.eval.eligible(r.rec)
	}
	return r.finish(ctx)
}

// checkReentry fails the run when a router cycle member is selected more
// often than its limit allows
func (r *run) checkReentry(ready []api.StepName) error {
	for _, name := range ready {
		limit, ok := r.graph.ReentryLimit(name)
		if !ok || r.rec.runs[name] <= limit {
			continue
		}
		r.err = &CycleLimitError{Step: name, Limit: limit}
		r.failedStep = name
		return r.err
	}
	return nil
}

// tick starts every ready step, merges completions in arrival order, and
// returns once all of them have settled
func (r *run) tick(ready []api.StepName) {
	inputs := make([]Inputs, len(ready))
	for i, name := range ready {
		inputs[i] = r.rec.start(name)
		r.emit(api.EventTypeStepStarted, name, "", nil)
	}

	var slots chan struct{}
	if r.flow.concurrency > 0 {
		slots = make(chan struct{}, r.flow.concurrency)
	}

	results := make(chan completion, len(ready))
	var wg sync.WaitGroup
	for i, name := range ready {
		step, _ := r.graph.Step(name)
		in := inputs[i]
		wg.Go(func() {
			if slots != nil {
				slots <- struct{}{}
				defer func() { <-slots }()
			}
			if err := r.stepCtx.Err(); err != nil {
				results <- completion{step: name, err: err}
				return
			}
			out, err := r.invoke(r.stepCtx, step, in)
			results <- completion{step: name, out: out, err: err}
		})
	}

	for range ready {
		r.merge(<-results)
	}
	wg.Wait()
}

func (r *run) merge(c completion) {
	if c.err == nil {
		r.rec.complete(c.step, c.out)
		r.dirty = true
		label := r.labelOf(c.step, c.out)
		slog.Debug("Step completed",
			log.RunID(r.state.RunID()),
			log.StepName(c.step))
		r.emit(api.EventTypeStepCompleted, c.step, label, nil)
		r.eval.completed(r.rec, c.step, c.out)
		return
	}

	if r.interrupted(c.err) {
		r.rec.abandon(c.step)
		r.emit(api.EventTypeStepFailed, c.step, "", c.err)
		return
	}

	err := asExecutionError(c.step, c.err)
	r.rec.fail(c.step, err)
	r.emit(api.EventTypeStepFailed, c.step, "", err)

	if handlers := r.eval.failed(r.rec, c.step, err); handlers > 0 {
		slog.Info("Step failure handled",
			log.RunID(r.state.RunID()),
			log.StepName(c.step),
			slog.Int("handlers", handlers),
			log.Error(err))
		return
	}

	slog.Warn("Step failed",
		log.RunID(r.state.RunID()),
		log.StepName(c.step),
		log.Error(err))
	if r.err == nil {
		r.err = err
		r.failedStep = c.step
		r.cancel()
	}
}

// interrupted reports whether a step error is the step honoring the
// cancellation of the run rather than a failure of its own
func (r *run) interrupted(err error) bool {
	cause := r.stepCtx.Err()
	if cause == nil {
		return false
	}
	return errors.Is(err, cause) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrCancelled)
}

func (r *run) finish(ctx context.Context) *Result {
	var evType api.EventType
	var status api.FlowStatus
	switch {
	case r.err != nil:
		status, evType = api.FlowFailed, api.EventTypeFlowFailed
	case ctx.Err() != nil:
		r.err = ErrCancelled
		status, evType = api.FlowCancelled, api.EventTypeFlowCancelled
	default:
		status, evType = api.FlowCompleted, api.EventTypeFlowCompleted
	}

	r.transition(status)
	if status == api.FlowCompleted {
		r.emit(evType, "", "", nil)
	} else {
		r.emit(evType, "", "", r.err)
	}
	r.persist(ctx)

	slog.Info("Flow finished",
		log.FlowName(r.flow.name),
		log.RunID(r.state.RunID()),
		log.Status(r.status),
		log.Revision(r.state.Revision()))

	return &Result{
		RunID:      r.state.RunID(),
		Flow:       r.flow.name,
		Status:     r.status,
		State:      r.state.Snapshot(),
		Revision:   r.state.Revision(),
		Outputs:    r.rec.outputs.Clone(),
		Events:     r.rec.eventLog(),
		Err:        r.err,
		FailedStep: r.failedStep,
	}
}

func (r *run) transition(to api.FlowStatus) {
	if !flowTransitions.CanTransition(r.status, to) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, to)
		slog.Error("Flow transition rejected",
			log.RunID(r.state.RunID()),
			log.Error(err))
		return
	}
	r.status = to
}

func (r *run) emit(
	typ api.EventType, step api.StepName, label api.Label, err error,
) {
	ev := api.Event{
		Timestamp: r.flow.clock(),
		Type:      typ,
		RunID:     r.state.RunID(),
		Flow:      r.flow.name,
		Step:      step,
		Label:     label,
		Revision:  r.state.Revision(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.bus.Publish(r.rec.append(ev))
}

func (r *run) labelOf(step api.StepName, out any) api.Label {
	if !r.graph.isRouter(step) {
		return ""
	}
	return routerLabel(out)
}

func (r *run) persistChanges(ctx context.Context) {
	if r.dirty || r.state.Revision() != r.savedRev {
		r.persist(ctx)
	}
}

// persist saves a snapshot. Failures are logged and never stop the run
func (r *run) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	snap := r.snapshot()
	err := r.store.Save(context.WithoutCancel(ctx), snap.RunID, snap)
	if err != nil {
		slog.Warn("Snapshot not saved",
			log.RunID(snap.RunID),
			log.Revision(snap.Revision),
			log.Error(fmt.Errorf("%w: %w", ErrPersistence, err)))
		return
	}
	r.savedRev = snap.Revision
	r.dirty = false
}

func (r *run) snapshot() *api.Snapshot {
	return &api.Snapshot{
		SavedAt:  r.flow.clock(),
		RunID:    r.state.RunID(),
		Flow:     r.flow.name,
		Status:   r.status,
		Values:   r.state.Snapshot(),
		Outputs:  r.rec.outputs.Clone(),
		Revision: r.state.Revision(),
	}
}

func routerLabel(out any) api.Label {
	switch v := out.(type) {
	case api.Label:
		return v
	case string:
		return api.Label(v)
	default:
		return ""
	}
}
