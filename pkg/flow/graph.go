package flow

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/util"
)

// Graph is the validated, immutable form of a Registry
type Graph struct {
	steps      []*Step
	index      map[api.StepName]int
	consumers  map[api.StepName][]api.StepName
	starts     []api.StepName
	anyFailure util.Set[api.StepName]
	reentry    map[api.StepName]int
}

func newGraph(steps []*Step) *Graph {
	g := &Graph{
		steps:      slices.Clone(steps),
		index:      make(map[api.StepName]int, len(steps)),
		consumers:  map[api.StepName][]api.StepName{},
		anyFailure: util.Set[api.StepName]{},
		reentry:    map[api.StepName]int{},
	}
	for i, s := range steps {
		g.index[s.Name] = i
		if s.IsStart() {
			g.starts = append(g.starts, s.Name)
		}
	}
	return g
}

// Steps returns the steps in registration order
func (g *Graph) Steps() []*Step {
	return slices.Clone(g.steps)
}

// Step returns the named step
func (g *Graph) Step(name api.StepName) (*Step, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.steps[i], true
}

// Names returns the step names in registration order
func (g *Graph) Names() []api.StepName {
	res := make([]api.StepName, len(g.steps))
	for i, s := range g.steps {
		res[i] = s.Name
	}
	return res
}

// StartSteps returns the steps eligible at the beginning of a run
func (g *Graph) StartSteps() []api.StepName {
	return slices.Clone(g.starts)
}

// Consumers returns the steps with a source naming the producer, in
// registration order
func (g *Graph) Consumers(producer api.StepName) []api.StepName {
	return slices.Clone(g.consumers[producer])
}

// ReentryLimit returns the re-entry limit of a step that is a member of a
// router cycle
func (g *Graph) ReentryLimit(name api.StepName) (int, bool) {
	limit, ok := g.reentry[name]
	return limit, ok
}

// Len returns the number of steps
func (g *Graph) Len() int {
	return len(g.steps)
}

// Describe renders the graph as stable, human-readable text
func (g *Graph) Describe() string {
	var table strings.Builder
	tw := tabwriter.NewWriter(&table, 0, 4, 2, ' ', 0)
	for _, s := range g.steps {
		trigger := "-"
		if s.Trigger != nil {
			trigger = s.Trigger.String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.Kind, s.Name, trigger, g.describeOptions(s))
	}
	_ = tw.Flush()

	var buf strings.Builder
	for line := range strings.Lines(table.String()) {
		buf.WriteString(strings.TrimRight(line, " \n"))
		buf.WriteByte('\n')
	}
	for _, s := range g.steps {
		if cons := g.consumers[s.Name]; len(cons) > 0 {
			_, _ = fmt.Fprintf(&buf, "%s -> %s\n",
				s.Name, joinNames(cons, ", "))
		}
	}
	return buf.String()
}

func (g *Graph) describeOptions(s *Step) string {
	var opts []string
	if limit, ok := g.reentry[s.Name]; ok {
		opts = append(opts, fmt.Sprintf("reentry=%d", limit))
	}
	if s.Retry != nil {
		opts = append(opts, fmt.Sprintf("retry=%d", s.Retry.MaxRetries))
	}
	if s.Timeout > 0 {
		opts = append(opts, "timeout="+s.Timeout.String())
	}
	return strings.Join(opts, " ")
}

func (g *Graph) addEdge(producer, consumer api.StepName) {
	if slices.Contains(g.consumers[producer], consumer) {
		return
	}
	g.consumers[producer] = append(g.consumers[producer], consumer)
}

// successors returns the steps a step can trigger. Beyond its consumers,
// a failure of the step fires every failure-any listener, unless the step
// is one itself
func (g *Graph) successors(name api.StepName) []api.StepName {
	next := g.consumers[name]
	if len(g.anyFailure) == 0 || g.anyFailure.Contains(name) {
		return next
	}
	res := slices.Clone(next)
	for _, s := range g.steps {
		if g.anyFailure.Contains(s.Name) && !slices.Contains(res, s.Name) {
			res = append(res, s.Name)
		}
	}
	return res
}

func (g *Graph) isRouter(name api.StepName) bool {
	s, ok := g.Step(name)
	return ok && s.IsRouter()
}

// findDirectCycle returns a cycle that survives removing every edge leaving
// a router, or nil
func findDirectCycle(g *Graph) []api.StepName {
	const (
		unvisited = iota
		visiting
		done
	)
	color := make(map[api.StepName]int, len(g.steps))
	var path []api.StepName

	var visit func(api.StepName) []api.StepName
	visit = func(name api.StepName) []api.StepName {
		color[name] = visiting
		path = append(path, name)
		if !g.isRouter(name) {
			for _, next := range g.successors(name) {
				switch color[next] {
				case visiting:
					start := slices.Index(path, next)
					return append(slices.Clone(path[start:]), next)
				case unvisited:
					if c := visit(next); c != nil {
						return c
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = done
		return nil
	}

	for _, s := range g.steps {
		if color[s.Name] == unvisited {
			if c := visit(s.Name); c != nil {
				return c
			}
		}
	}
	return nil
}

// cycles returns the strongly connected components that contain a cycle,
// each ordered by registration
func (g *Graph) cycles() [][]api.StepName {
	var (
		res     [][]api.StepName
		stack   []api.StepName
		counter int
	)
	index := map[api.StepName]int{}
	low := map[api.StepName]int{}
	onStack := util.Set[api.StepName]{}

	var connect func(api.StepName)
	connect = func(name api.StepName) {
		index[name] = counter
		low[name] = counter
		counter++
		stack = append(stack, name)
		onStack.Add(name)

		for _, next := range g.successors(name) {
			if _, seen := index[next]; !seen {
				connect(next)
				low[name] = min(low[name], low[next])
			} else if onStack.Contains(next) {
				low[name] = min(low[name], index[next])
			}
		}

		if low[name] != index[name] {
			return
		}
		var comp []api.StepName
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack.Remove(top)
			comp = append(comp, top)
			if top == name {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(g.successors(name), name) {
			slices.SortFunc(comp, g.compareOrder)
			res = append(res, comp)
		}
	}

	for _, s := range g.steps {
		if _, seen := index[s.Name]; !seen {
			connect(s.Name)
		}
	}
	slices.SortFunc(res, func(l, r []api.StepName) int {
		return g.compareOrder(l[0], r[0])
	})
	return res
}

func (g *Graph) compareOrder(l, r api.StepName) int {
	return g.index[l] - g.index[r]
}

func joinNames(names []api.StepName, sep string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, sep)
}
