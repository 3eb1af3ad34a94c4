package flowdef_test

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/flowdef"
	"github.com/kode4food/cascade/pkg/script"
)

func loadOrder(t *testing.T) (*flowdef.Definition, *flow.Flow) {
	t.Helper()
	def, err := flowdef.Load("testdata/order.yaml")
	require.NoError(t, err)
	f, err := def.Flow(script.NewEnv())
	require.NoError(t, err)
	return def, f
}

func TestLoad(t *testing.T) {
	def, f := loadOrder(t)

	assert.Equal(t, "order", def.Name)
	assert.Equal(t, "order", f.Name())
	assert.Equal(t, 3, def.MaxReentry)
	assert.Equal(t, 2*time.Second, def.StepTimeout)
	assert.Len(t, def.Steps, 7)
	assert.Equal(t, api.Values{"total": 0, "status": "new"}, def.Seed())
}

func TestDescribeGolden(t *testing.T) {
	_, f := loadOrder(t)
	g, err := f.Build()
	require.NoError(t, err)

	gold := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	gold.Assert(t, "order", []byte(g.Describe()))
}

func TestRunOrder(t *testing.T) {
	def, f := loadOrder(t)

	res, err := f.Kickoff(context.Background(), flow.WithSeed(def.Seed()))
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Equal(t, api.FlowCompleted, res.Status)
	assert.Equal(t, "shipped", res.State["status"])
	assert.Equal(t, "shipped", res.Outputs["ship"])
	assert.Equal(t, "held", res.Outputs["hold"])
	assert.Equal(t, api.Label("ready"), res.Outputs["decide"])
	assert.NotContains(t, res.Outputs, api.StepName("recover"))
}

func TestRunOrderRecovers(t *testing.T) {
	def, f := loadOrder(t)

	seed := def.Seed()
	seed["total"] = -5
	res, err := f.Kickoff(context.Background(), flow.WithSeed(seed))
	require.NoError(t, err)

	assert.Equal(t, api.FlowCompleted, res.Status)
	assert.Equal(t, "recovered", res.Outputs["recover"])
	assert.NotContains(t, res.Outputs, api.StepName("price"))
	assert.NotContains(t, res.Outputs, api.StepName("decide"))
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field": "name: x\nsteps:\n  - name: a\n    lau: return 1\n",
		"no name":       "steps:\n  - name: a\n    lua: return 1\n",
		"no steps":      "name: x\n",
		"no lua":        "name: x\nsteps:\n  - name: a\n",
		"switch on step": "name: x\nsteps:\n" +
			"  - name: a\n    lua: return 1\n    switch: k\n",
		"router without body": "name: x\nsteps:\n" +
			"  - name: a\n    router: true\n",
		"half route": "name: x\nsteps:\n  - name: a\n    lua: return 1\n" +
			"  - name: b\n    route: { router: a }\n    lua: return 1\n",
		"lua and ale": "name: x\nsteps:\n" +
			"  - name: a\n    lua: return 1\n    ale: '1'\n",
		"args without ale": "name: x\nsteps:\n" +
			"  - name: a\n    lua: return 1\n    args: [a]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := flowdef.Parse([]byte(doc))
			assert.ErrorIs(t, err, flowdef.ErrInvalidDefinition)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := flowdef.Load("testdata/missing.yaml")
	assert.ErrorIs(t, err, flowdef.ErrReadDefinition)

	_, err = flowdef.Load("testdata/bad_trigger.yaml")
	assert.ErrorIs(t, err, flowdef.ErrInvalidDefinition)
}

func TestFlowErrors(t *testing.T) {
	env := script.NewEnv()

	def, err := flowdef.Parse([]byte("name: x\nsteps:\n" +
		"  - name: a\n    lua: 'return ('\n"))
	require.NoError(t, err)
	_, err = def.Flow(env)
	assert.ErrorIs(t, err, script.ErrCompile)
	assert.ErrorIs(t, err, flowdef.ErrInvalidDefinition)

	def, err = flowdef.Parse([]byte("name: x\nsteps:\n" +
		"  - name: a\n    lua: return 1\n" +
		"  - name: b\n    on: nope\n    lua: return 1\n"))
	require.NoError(t, err)
	_, err = def.Flow(env)
	assert.ErrorIs(t, err, flow.ErrUnknownStep)
}

func TestSwitchRouter(t *testing.T) {
	def, err := flowdef.Parse([]byte(`
name: switch
state:
  tier: 2
steps:
  - name: pick
    router: true
    switch: tier
  - name: two
    route: { router: pick, label: "2" }
    lua: return "tier two"
`))
	require.NoError(t, err)
	f, err := def.Flow(script.NewEnv())
	require.NoError(t, err)

	res, err := f.Kickoff(context.Background(), flow.WithSeed(def.Seed()))
	require.NoError(t, err)
	assert.Equal(t, "tier two", res.Outputs["two"])
}

func TestAleSteps(t *testing.T) {
	def, err := flowdef.Parse([]byte(`
name: priced
state:
  qty: 3
  price: 5
steps:
  - name: total
    ale: "{:total (* qty price)}"
    args: [qty, price]
  - name: pick
    on: total
    router: true
    ale: '"big"'
  - name: report
    route: { router: pick, label: big }
    lua: return "total " .. get("total")
`))
	require.NoError(t, err)
	f, err := def.Flow(script.NewEnv())
	require.NoError(t, err)

	res, err := f.Kickoff(context.Background(), flow.WithSeed(def.Seed()))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, api.FlowCompleted, res.Status)
	assert.EqualValues(t, 15, res.State["total"])
	assert.Equal(t, api.Label("big"), res.Outputs["pick"])
	assert.Equal(t, "total 15", res.Outputs["report"])
}

func TestAleCompileFails(t *testing.T) {
	def, err := flowdef.Parse([]byte("name: x\nsteps:\n" +
		"  - name: a\n    ale: '(+ 1'\n"))
	require.NoError(t, err)
	_, err = def.Flow(script.NewEnv())
	assert.ErrorIs(t, err, script.ErrAleCompile)
	assert.ErrorIs(t, err, flowdef.ErrInvalidDefinition)
}

func TestFixedState(t *testing.T) {
	def, err := flowdef.Parse([]byte(`
name: fixed
fixed_state: true
state:
  count: 0
steps:
  - name: write
    lua: set("other", 1)
`))
	require.NoError(t, err)
	f, err := def.Flow(script.NewEnv())
	require.NoError(t, err)

	res, err := f.Kickoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.FlowFailed, res.Status)
	assert.ErrorIs(t, res.Err, flow.ErrUnknownKey)
}
