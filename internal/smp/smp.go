// Package smp implements spec §4.12's multiprocessor bringup: reading
// the firmware's processor table, designating the boot processor, and
// sequencing the application-processor startup IPI protocol with a
// bounded retry and timeout (the core's resolution of the spec's open
// question about an AP that never reports booted).
//
// Grounded on original_source/trunk/arch/x64/smp.c's smp_init/
// smp_activiate_ap (probe the MP table, then for every non-BSP entry
// send INIT, a short delay, and STARTUP, spinning on smp_ap_booted),
// generalized from a busy spin to a bounded wait via
// golang.org/x/sync/errgroup, the way
// other_examples/6d107c32_usbarmory-tamago__amd64-smp.go.go's InitSMP
// sequences INIT+SIPI per AP with a time.Sleep settle and a
// reg.WaitFor-bounded readiness check instead of an unbounded spin.
package smp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpkernel/core/internal/cpu"
	"github.com/mpkernel/core/internal/kconfig"
	"github.com/mpkernel/core/internal/kerrors"
	"github.com/mpkernel/core/internal/platform"
)

// startupVector is the physical page number the trampoline lives at
// (spec §6's SendStartup "entryPage" argument), matching smp.c's
// trampoline relocation to physical page 1 (0x1000).
const startupVector uint8 = 1

// APState is the bringup disposition of one non-boot processor.
type APState int

const (
	APPending APState = iota
	APBooted
	APFailed
)

// Result is the per-AP outcome of Bringup, reported so the caller can
// log/count failures and continue booting without the missing CPU
// (spec §4.12 "a CPU that never signals readiness must not hang the
// boot").
type Result struct {
	CPU   int
	State APState
}

// Bringup probes table for every enabled, non-boot processor and
// brings each one up in parallel via the BSP's local controller.
// table is consulted only for its CPU count; binding each CPU's
// controller is left to the caller. bspController is the boot
// processor's own controller, used to send the INIT/STARTUP IPIs
// (spec §6 local_controller.send_startup).
//
// awaitBooted is polled for each target CPU until it reports true (set
// by that CPU's own entry path) or the per-CPU deadline elapses. One retry of the INIT/STARTUP
// sequence is attempted before declaring a CPU failed, per the core's
// resolution of the spec's bringup-timeout open question.
func Bringup(ctx context.Context, table *cpu.Table, mp platform.MPTable, bspController platform.LocalController, awaitBooted func(cpuIdx int) bool) ([]Result, error) {
	procs := mp.Processors()
	if len(procs) == 0 {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "MP table reports no processors")
	}
	if len(procs) > table.N() {
		return nil, kerrors.Wrap(kerrors.ErrInvalidArgument, "MP table reports more processors than the CPU table has records for")
	}

	results := make([]Result, len(procs))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range procs {
		i, p := i, p
		if p.IsBoot || !p.Enabled {
			results[i] = Result{CPU: p.ID, State: APBooted}
			continue
		}
		g.Go(func() error {
			state := bringupOne(gctx, bspController, p.ID, awaitBooted)
			results[i] = Result{CPU: p.ID, State: state}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// bringupOne runs the INIT-delay-STARTUP sequence, retrying once on
// timeout, per smp.c's smp_activiate_ap double-STARTUP send (the
// original sends the STARTUP IPI twice unconditionally; the core
// instead waits kconfig.APBootTimeout after the first attempt and only
// resends if the CPU hasn't reported ready).
func bringupOne(ctx context.Context, bsp platform.LocalController, target int, awaitBooted func(cpuIdx int) bool) APState {
	for attempt := 0; attempt < 2; attempt++ {
		bsp.SendStartup(target, startupVector)
		if waitBooted(ctx, target, kconfig.APBootTimeout, awaitBooted) {
			return APBooted
		}
	}
	return APFailed
}

func waitBooted(ctx context.Context, target int, timeout time.Duration, awaitBooted func(cpuIdx int) bool) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if awaitBooted(target) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}
