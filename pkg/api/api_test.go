package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cascade/pkg/api"
)

func TestNormalizeName(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune
	decomposed := api.StepName("cafe\u0301 ")
	assert.Equal(t, api.StepName("caf\u00e9"), api.NormalizeName(decomposed))
}

func TestValidName(t *testing.T) {
	assert.True(t, api.ValidName("fetch-user"))
	assert.True(t, api.ValidName("step 1.a"))
	assert.True(t, api.ValidName(api.StepName("café")))
	assert.False(t, api.ValidName(""))
	assert.False(t, api.ValidName(api.AnyStep))
	assert.False(t, api.ValidName("a/b"))
}

func TestEventTypePredicates(t *testing.T) {
	assert.True(t, api.EventTypeFlowCompleted.IsTerminal())
	assert.True(t, api.EventTypeFlowCancelled.IsTerminal())
	assert.False(t, api.EventTypeStepCompleted.IsTerminal())
	assert.True(t, api.EventTypeStepFailed.IsStepEvent())
	assert.False(t, api.EventTypeFlowStarted.IsStepEvent())
}

func TestValuesCloneIsDeep(t *testing.T) {
	orig := api.Values{
		"user": map[string]any{"name": "ada"},
		"tags": []any{"x"},
	}
	cl := orig.Clone()
	cl["user"].(map[string]any)["name"] = "bob"
	cl["tags"].([]any)[0] = "y"

	assert.Equal(t, "ada", orig["user"].(map[string]any)["name"])
	assert.Equal(t, "x", orig["tags"].([]any)[0])
}

func TestSnapshotWithValues(t *testing.T) {
	s := &api.Snapshot{RunID: "r", Values: api.Values{"a": 1}}
	res := s.WithValues(api.Values{"b": 2})

	assert.Equal(t, api.Values{"a": 1}, s.Values)
	assert.Equal(t, api.Values{"a": 1, "b": 2}, res.Values)
	assert.Equal(t, api.RunID("r"), res.RunID)
}
