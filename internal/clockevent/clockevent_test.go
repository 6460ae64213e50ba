package clockevent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/clockevent"
)

type fakeEventer struct {
	name      string
	flags     clockevent.Flags
	minPeriod time.Duration
	started   bool
	stopped   bool
}

func (e *fakeEventer) Name() string             { return e.name }
func (e *fakeEventer) Flags() clockevent.Flags  { return e.flags }
func (e *fakeEventer) MinPeriod() time.Duration { return e.minPeriod }
func (e *fakeEventer) MaxPeriod() time.Duration { return time.Second }
func (e *fakeEventer) Start(mode clockevent.Mode, period time.Duration, handler func()) error {
	e.started = true
	return nil
}
func (e *fakeEventer) Stop() { e.stopped = true }

func TestRegistry_SelectPrefersPerCPU(t *testing.T) {
	r := clockevent.NewRegistry()
	global := &fakeEventer{name: "global", flags: clockevent.FlagOneShot | clockevent.FlagPeriodic, minPeriod: time.Microsecond}
	perCPU := &fakeEventer{name: "percpu", flags: clockevent.FlagOneShot | clockevent.FlagPeriodic | clockevent.FlagPerCPU, minPeriod: time.Microsecond}
	r.Register(global)
	r.Register(perCPU)

	got, err := r.Select(clockevent.FlagPeriodic, 0, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "percpu", got.Name())
}

func TestRegistry_SelectRespectsForbiddenFlags(t *testing.T) {
	r := clockevent.NewRegistry()
	r.Register(&fakeEventer{name: "c3-stopping", flags: clockevent.FlagPeriodic | clockevent.FlagStopsInC3, minPeriod: time.Microsecond})

	_, err := r.Select(clockevent.FlagPeriodic, clockevent.FlagStopsInC3, time.Millisecond)
	assert.Error(t, err)
}

func TestRegistry_SelectRespectsMinResolution(t *testing.T) {
	r := clockevent.NewRegistry()
	r.Register(&fakeEventer{name: "coarse", flags: clockevent.FlagPeriodic, minPeriod: time.Second})

	_, err := r.Select(clockevent.FlagPeriodic, 0, time.Millisecond)
	assert.Error(t, err, "an eventer whose finest period is coarser than the requested resolution must not be selected")
}

func TestRegistry_SelectExcludesInUse(t *testing.T) {
	r := clockevent.NewRegistry()
	r.Register(&fakeEventer{name: "only", flags: clockevent.FlagPeriodic, minPeriod: time.Microsecond})

	first, err := r.Select(clockevent.FlagPeriodic, 0, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "only", first.Name())

	_, err = r.Select(clockevent.FlagPeriodic, 0, time.Millisecond)
	assert.Error(t, err, "an already-selected eventer must not be handed out twice")

	r.Release(first)
	second, err := r.Select(clockevent.FlagPeriodic, 0, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "only", second.Name())
}

func TestAPICEventer_DistinctNamesPerCPU(t *testing.T) {
	a := clockevent.NewAPICEventer(0, nil, nil)
	b := clockevent.NewAPICEventer(1, nil, nil)
	assert.NotEqual(t, a.Name(), b.Name(), "per-CPU eventers must not collide in the registry's in-use map")
}
