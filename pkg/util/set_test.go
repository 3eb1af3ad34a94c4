package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cascade/pkg/util"
)

func TestSetOf(t *testing.T) {
	s := util.SetOf("a", "b", "a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("c"))
}

func TestSetAddRemove(t *testing.T) {
	s := util.Set[int]{}
	assert.True(t, s.IsEmpty())

	s.Add(1)
	s.Add(2)
	assert.Equal(t, 2, s.Len())

	s.Remove(1)
	assert.False(t, s.Contains(1))
	assert.Equal(t, 1, s.Len())
}

func TestSetClone(t *testing.T) {
	s := util.SetOf(1, 2)
	c := s.Clone()
	c.Add(3)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, c.Len())
}

func TestSorted(t *testing.T) {
	s := util.SetOf("c", "a", "b")
	assert.Equal(t, []string{"a", "b", "c"}, util.Sorted(s))
}
