package cpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpkernel/core/internal/cpu"
)

func TestSet_AddRemoveHas(t *testing.T) {
	s := cpu.NewSet()
	assert.False(t, s.Has(3))

	s.Add(3)
	assert.True(t, s.Has(3))
	assert.Equal(t, 1, s.Count())

	s.Remove(3)
	assert.False(t, s.Has(3))
	assert.Equal(t, 0, s.Count())
}

func TestSet_Members_AscendingOrder(t *testing.T) {
	s := cpu.NewSet().Add(5).Add(1).Add(3)
	assert.Equal(t, []int{1, 3, 5}, s.Members())
}

func TestAll_ContainsExactlyRequestedRange(t *testing.T) {
	s := cpu.All(4)
	assert.Equal(t, []int{0, 1, 2, 3}, s.Members())
	assert.False(t, s.Has(4))
}

// TestSet_Equal backs the interning equality CPU groups rely on (spec
// §3): two sets built from different insertion orders but the same
// membership compare equal.
func TestSet_Equal(t *testing.T) {
	a := cpu.NewSet().Add(0).Add(2).Add(4)
	b := cpu.NewSet().Add(4).Add(0).Add(2)
	c := cpu.NewSet().Add(0).Add(1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestSet_Clone_IsIndependent(t *testing.T) {
	a := cpu.NewSet().Add(1)
	b := a.Clone()
	b.Add(2)

	assert.False(t, a.Has(2))
	assert.True(t, b.Has(2))
}
