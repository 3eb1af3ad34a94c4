package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
)

func label(l api.Label) flow.RouterFunc {
	return func(context.Context, *flow.State, flow.Inputs) (api.Label, error) {
		return l, nil
	}
}

func TestRegisterErrors(t *testing.T) {
	f := flow.New("errors")
	require.NoError(t, f.AddStep("s", value(1)))

	err := f.AddStep("s", value(2))
	assert.ErrorIs(t, err, flow.ErrDuplicateStep)

	err = f.AddStep(" s ", value(2))
	assert.ErrorIs(t, err, flow.ErrDuplicateStep)

	err = f.AddStep("", value(1))
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddStep("a/b", value(1))
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddStep("nil", nil)
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddListener("l", nil, value(1))
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddListener("l", flow.AllOf(), value(1))
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddRouter("r", nil, nil)
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.AddListener("neg", flow.On("s"), value(1), flow.Reentry(-1))
	assert.ErrorIs(t, err, flow.ErrInvalidStep)

	err = f.Register(&flow.Step{
		Name: "odd", Kind: "other", Func: value(1),
	})
	assert.ErrorIs(t, err, flow.ErrInvalidStep)
}

func TestBuildErrors(t *testing.T) {
	t.Run("no start steps", func(t *testing.T) {
		f := flow.New("none")
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrGraphValidation)
		assert.ErrorIs(t, err, flow.ErrNoStartSteps)
	})

	t.Run("unknown source", func(t *testing.T) {
		f := flow.New("unknown")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("l", flow.On("missing"), value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrGraphValidation)
		assert.ErrorIs(t, err, flow.ErrUnknownStep)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("label on non-router", func(t *testing.T) {
		f := flow.New("label")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("l", flow.Route("s", "x"), value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrLabelOnNonRouter)
	})

	t.Run("wildcard plain source", func(t *testing.T) {
		f := flow.New("wild")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("l", flow.On(api.AnyStep), value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrInvalidSource)
	})

	t.Run("cycle without router", func(t *testing.T) {
		f := flow.New("cycle")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("a",
			flow.AnyOf(flow.Output("s"), flow.Output("b")), value(1)))
		require.NoError(t, f.AddListener("b", flow.On("a"), value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrGraphValidation)
		assert.ErrorIs(t, err, flow.ErrCycle)
		assert.Contains(t, err.Error(), "a -> b -> a")
	})

	t.Run("failure-any loop", func(t *testing.T) {
		f := flow.New("alert")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("handler", flow.FailedAny(),
			value(1)))
		require.NoError(t, f.AddListener("notify", flow.On("handler"),
			value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrCycle)
		assert.Contains(t, err.Error(), "handler -> notify -> handler")
	})

	t.Run("failure-any loop through router", func(t *testing.T) {
		f := flow.New("alert", flow.WithMaxReentry(2))
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddRouter("handler", flow.FailedAny(),
			label("retry")))
		require.NoError(t, f.AddListener("notify",
			flow.Route("handler", "retry"), value(1)))
		g, err := f.Build()
		require.NoError(t, err)
		limit, ok := g.ReentryLimit("notify")
		assert.True(t, ok)
		assert.Equal(t, 2, limit)
		_, ok = g.ReentryLimit("s")
		assert.False(t, ok)
	})

	t.Run("self dependency", func(t *testing.T) {
		f := flow.New("self")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddListener("a",
			flow.AnyOf(flow.Output("s"), flow.Output("a")), value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrCycle)
	})

	t.Run("unbounded router cycle", func(t *testing.T) {
		f := flow.New("unbounded")
		require.NoError(t, f.AddStep("s", value(1)))
		require.NoError(t, f.AddRouter("r",
			flow.AnyOf(flow.Output("s"), flow.Label("r", "again")),
			label("again")))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrUnboundedCycle)
	})

	t.Run("invalid shape", func(t *testing.T) {
		f := flow.New("shape", flow.WithShape(42))
		require.NoError(t, f.AddStep("s", value(1)))
		_, err := f.Build()
		assert.ErrorIs(t, err, flow.ErrInvalidShape)
	})
}

func TestRouterCycleLimits(t *testing.T) {
	build := func(opts ...flow.Option) (*flow.Graph, error) {
		f := flow.New("loop", opts...)
		if err := f.AddStep("s", value(1)); err != nil {
			return nil, err
		}
		if err := f.AddListener("work",
			flow.AnyOf(flow.Output("s"), flow.Label("check", "again")),
			value(1),
		); err != nil {
			return nil, err
		}
		if err := f.AddRouter("check", flow.On("work"), label("done"),
			flow.Reentry(5),
		); err != nil {
			return nil, err
		}
		return f.Build()
	}

	_, err := build()
	assert.ErrorIs(t, err, flow.ErrUnboundedCycle)

	g, err := build(flow.WithMaxReentry(2))
	require.NoError(t, err)

	limit, ok := g.ReentryLimit("work")
	assert.True(t, ok)
	assert.Equal(t, 2, limit)

	limit, ok = g.ReentryLimit("check")
	assert.True(t, ok)
	assert.Equal(t, 5, limit)

	_, ok = g.ReentryLimit("s")
	assert.False(t, ok)
}

func TestIdempotentBuild(t *testing.T) {
	f := flow.New("stable", flow.WithMaxReentry(3))
	require.NoError(t, f.AddStep("fetch", value(1)))
	require.NoError(t, f.AddStep("config", value(2)))
	require.NoError(t, f.AddListener("merge", flow.All("fetch", "config"),
		value(3)))
	require.NoError(t, f.AddRouter("route", flow.On("merge"), label("ok")))
	require.NoError(t, f.AddListener("ok", flow.Route("route", "ok"),
		value(4)))
	require.NoError(t, f.AddListener("bad", flow.Route("route", "bad"),
		value(5)))

	g1, err := f.Build()
	require.NoError(t, err)
	g2, err := f.Build()
	require.NoError(t, err)

	assert.NotSame(t, g1, g2)
	assert.Equal(t, g1.Names(), g2.Names())
	assert.Equal(t, g1.StartSteps(), g2.StartSteps())
	assert.Equal(t, g1.Describe(), g2.Describe())
	for _, name := range g1.Names() {
		assert.Equal(t, g1.Consumers(name), g2.Consumers(name))
	}
	assert.Equal(t,
		[]api.StepName{"fetch", "config"}, g1.StartSteps())
	assert.Equal(t,
		[]api.StepName{"ok", "bad"}, g1.Consumers("route"))
}

func TestDescribe(t *testing.T) {
	f := flow.New("describe")
	require.NoError(t, f.AddStep("s", value(1)))
	require.NoError(t, f.AddRouter("r", flow.On("s"), label("a")))
	require.NoError(t, f.AddListener("a", flow.Route("r", "a"), value(1)))

	g, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, ""+
		"start   s  -\n"+
		"router  r  all(s)\n"+
		"listen  a  all(r:a)\n"+
		"s -> r\n"+
		"r -> a\n", g.Describe())
}

func TestNormalizedRegistration(t *testing.T) {
	f := flow.New("norm")
	require.NoError(t, f.AddStep("café", value(1)))
	require.NoError(t, f.AddListener("next", flow.On("café "), value(1)))

	g, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, []api.StepName{"next"}, g.Consumers("café"))

	step, ok := g.Step("next")
	require.True(t, ok)
	assert.Equal(t, api.TriggerListen, step.Kind)
	assert.False(t, step.IsStart())
	assert.Equal(t, "all(café)", step.Trigger.String())
}

func TestConditionStrings(t *testing.T) {
	assert.Equal(t, "all(a, b)", flow.All("a", "b").String())
	assert.Equal(t, "any(a, b)", flow.Any("a", "b").String())
	assert.Equal(t, "all(!a)", flow.Failed("a").String())
	assert.Equal(t, "all(!*)", flow.FailedAny().String())
	assert.Equal(t, "any(r:x, !b)",
		flow.AnyOf(flow.Label("r", "x"), flow.Failure("b")).String())
}
