package ktime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/ktime"
)

// counterStub drives ktime.Source.Read from a queue of raw values,
// letting tests force an exact wraparound sequence.
type counterStub struct {
	vals []uint64
	i    int
}

func (c *counterStub) read() uint64 {
	v := c.vals[c.i]
	if c.i < len(c.vals)-1 {
		c.i++
	}
	return v
}

// TestCounter_WraparoundSafe exercises spec §4.9's invariant: elapsed
// time computed across a raw-counter wraparound is still correct, for
// an 8-bit counter at 1 tick per nanosecond.
func TestCounter_WraparoundSafe(t *testing.T) {
	stub := &counterStub{vals: []uint64{250}}
	src := ktime.Source{
		Name:        "stub8",
		Read:        stub.read,
		FrequencyHz: uint64(time.Second),
		Bits:        8,
		FixupPeriod: time.Millisecond,
	}
	c, err := ktime.New(src, 0)
	require.NoError(t, err)

	stub.vals = []uint64{10} // wrapped past 255 back around to 10
	c.Fixup()

	// raw delta = (10 - 250) mod 256 = 16
	assert.Equal(t, int64(16), c.GetMonotonicNS())
}

func TestCounter_AccumulatesAcrossMultipleFixups(t *testing.T) {
	stub := &counterStub{vals: []uint64{0}}
	src := ktime.Source{
		Name:        "stub64",
		Read:        stub.read,
		FrequencyHz: uint64(time.Second),
		Bits:        64,
		FixupPeriod: time.Millisecond,
	}
	c, err := ktime.New(src, 1000)
	require.NoError(t, err)

	stub.vals = []uint64{500}
	c.Fixup()
	stub.vals = []uint64{900}
	c.Fixup()

	assert.Equal(t, int64(900), c.GetMonotonicNS())
	assert.Equal(t, int64(1000+900), c.GetWallTimeNS())
}

func TestNew_RejectsInvalidSource(t *testing.T) {
	_, err := ktime.New(ktime.Source{}, 0)
	assert.Error(t, err)
}

func TestSelectCounter_PicksHighestFrequency(t *testing.T) {
	low := ktime.Source{Name: "low", Read: func() uint64 { return 0 }, FrequencyHz: 1000, Bits: 32}
	high := ktime.Source{Name: "high", Read: func() uint64 { return 0 }, FrequencyHz: 1_000_000, Bits: 32}

	c, err := ktime.SelectCounter([]ktime.Source{low, high}, 0)
	require.NoError(t, err)
	assert.Equal(t, "high", c.Name())
}

func TestSelectCounter_RejectsEmpty(t *testing.T) {
	_, err := ktime.SelectCounter(nil, 0)
	assert.Error(t, err)
}
