// Package clockevent implements spec §4.10's clock eventer
// abstraction: a registration pass that publishes every available
// programmable interrupt source with its capability flags, a
// select() that picks the best candidate meeting a caller's
// constraints, and the global-tick handler chain bound to the winner.
//
// Grounded on original_source/trunk/arch/x64/apic.c (the local APIC
// timer, CONFIG_SCHED_USE_APIC's default tick source) and
// original_source/trunk/arch/x64/hpet.c (an alternative, higher-
// resolution, non-per-CPU source) — two hardware eventers of
// different capability profiles, which is exactly what Select's
// flags-required/flags-forbidden/min-resolution contract exists to
// choose between.
package clockevent

import (
	"fmt"
	"time"

	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/platform"
)

// Flags are an eventer's capability bits (spec §3 "Clock eventer").
type Flags uint32

const (
	FlagOneShot Flags = 1 << iota
	FlagPeriodic
	FlagPerCPU
	FlagStopsInC3
)

// Mode is the eventer's currently-programmed mode.
type Mode int

const (
	ModeStopped Mode = iota
	ModeOneShot
	ModePeriodic
)

// Eventer is spec §3's "Clock eventer": name, flags, min/max period,
// and start/stop bound to a handler.
type Eventer interface {
	Name() string
	Flags() Flags
	MinPeriod() time.Duration
	MaxPeriod() time.Duration
	// Start arms the eventer in mode at period, invoking handler on
	// every firing (repeatedly if periodic, once if one-shot).
	Start(mode Mode, period time.Duration, handler func()) error
	Stop()
}

// Registry implements the boot-time registration pass and select()
// named in spec §4.10.
type Registry struct {
	eventers []Eventer
	inUse    map[string]bool
}

// NewRegistry returns an empty eventer registry.
func NewRegistry() *Registry {
	return &Registry{inUse: make(map[string]bool)}
}

// Register publishes e as an available eventer.
func (r *Registry) Register(e Eventer) { r.eventers = append(r.eventers, e) }

// Select picks the best unused eventer meeting required (must have
// every bit set), forbidden (must have none of these bits set), and
// minResolution (MaxPeriod must be able to reach at least this fine a
// period — approximated here as MinPeriod <= minResolution). "Best"
// prefers PerCPU sources then finer MinPeriod, matching the intuition
// that a dedicated per-CPU source is preferable to a single shared
// global one for driving a per-CPU tick.
func (r *Registry) Select(required, forbidden Flags, minResolution time.Duration) (Eventer, error) {
	var best Eventer
	for _, e := range r.eventers {
		if r.inUse[e.Name()] {
			continue
		}
		f := e.Flags()
		if f&required != required {
			continue
		}
		if f&forbidden != 0 {
			continue
		}
		if e.MinPeriod() > minResolution {
			continue
		}
		if best == nil || betterThan(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, kerrors.Wrap(kerrors.ErrUnsupported, "no eventer satisfies the requested mode")
	}
	r.inUse[best.Name()] = true
	return best, nil
}

func betterThan(a, b Eventer) bool {
	aPerCPU, bPerCPU := a.Flags()&FlagPerCPU != 0, b.Flags()&FlagPerCPU != 0
	if aPerCPU != bPerCPU {
		return aPerCPU
	}
	return a.MinPeriod() < b.MinPeriod()
}

// Release marks e as available for a future Select, used when an
// owning CPU is torn down (not exercised by the core's own boot path
// but kept for symmetry with cpu.Registry's Release).
func (r *Registry) Release(e Eventer) { delete(r.inUse, e.Name()) }

// APICEventer adapts a per-CPU platform.LocalController's local timer
// as an Eventer bound to vector 0xF0 (spec §6's local-controller-timer
// vector), grounded on apic.c treating the LAPIC timer as the
// scheduler's default per-CPU tick source.
type APICEventer struct {
	cpuIdx int
	lc     platform.LocalController
	irq    platform.IRQTable
}

// NewAPICEventer binds cpuIdx's local controller and IRQ table as a
// per-CPU eventer.
func NewAPICEventer(cpuIdx int, lc platform.LocalController, irq platform.IRQTable) *APICEventer {
	return &APICEventer{cpuIdx: cpuIdx, lc: lc, irq: irq}
}

func (e *APICEventer) Name() string            { return fmt.Sprintf("lapic-cpu%d", e.cpuIdx) }
func (e *APICEventer) Flags() Flags            { return FlagOneShot | FlagPeriodic | FlagPerCPU }
func (e *APICEventer) MinPeriod() time.Duration { return time.Microsecond }
func (e *APICEventer) MaxPeriod() time.Duration { return time.Second }

func (e *APICEventer) Start(mode Mode, period time.Duration, handler func()) error {
	if mode == ModeStopped {
		e.Stop()
		return nil
	}
	if err := e.irq.Register(0xF0, "lapic-tick", handler); err != nil {
		return err
	}
	e.lc.ArmTimer(period, mode == ModePeriodic)
	return nil
}

func (e *APICEventer) Stop() {
	e.lc.StopTimer()
	_ = e.irq.Unregister(0xF0)
}

// HPETEventer adapts a single, non-per-CPU hardware source (the
// original's HPET) for comparison in Select; in this host-testable
// core it is backed by the same LocalController abstraction as the
// BSP's controller, since the spec does not model the HPET's distinct
// MMIO surface as a separate platform collaborator, only its
// capability profile as an eventer (no FlagPerCPU, finer resolution).
type HPETEventer struct {
	lc  platform.LocalController
	irq platform.IRQTable
}

// NewHPETEventer binds lc/irq as a global (non-per-CPU) eventer.
func NewHPETEventer(lc platform.LocalController, irq platform.IRQTable) *HPETEventer {
	return &HPETEventer{lc: lc, irq: irq}
}

func (e *HPETEventer) Name() string             { return "hpet" }
func (e *HPETEventer) Flags() Flags             { return FlagOneShot | FlagPeriodic | FlagStopsInC3 }
func (e *HPETEventer) MinPeriod() time.Duration { return 100 * time.Nanosecond }
func (e *HPETEventer) MaxPeriod() time.Duration { return time.Second }

func (e *HPETEventer) Start(mode Mode, period time.Duration, handler func()) error {
	if mode == ModeStopped {
		e.Stop()
		return nil
	}
	if err := e.irq.Register(0xF0, "hpet-tick", handler); err != nil {
		return err
	}
	e.lc.ArmTimer(period, mode == ModePeriodic)
	return nil
}

func (e *HPETEventer) Stop() {
	e.lc.StopTimer()
	_ = e.irq.Unregister(0xF0)
}
