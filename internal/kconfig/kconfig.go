// Package kconfig holds the compile-time tunables that, on real
// hardware, would be set by the build's Kconfig/menuconfig step.
package kconfig

import "time"

const (
	// MaxCPUs bounds every per-CPU array and the CPU-set bitmap width.
	MaxCPUs = 64

	// HZ is the target frequency of the global scheduler tick.
	HZ = 1000

	// KheapSize is the number of bytes requested from the page
	// allocator at boot to back the kernel heap.
	KheapSize = 16 << 20

	// MaxPriority is the highest valid priority value for the FIFO
	// and RR policies (priorities run 0..MaxPriority inclusive).
	MaxPriority = 63

	// DefaultStackSize is used by spawn when attrs don't specify one.
	DefaultStackSize = 32 << 10

	// DefaultRRSliceNS is the RR time slice used when attrs don't
	// specify one.
	DefaultRRSliceNS = 5 * int64(time.Millisecond)

	// FixupPeriodNS bounds how often the time counter must be read
	// relative to its wrap period; see ktime.Counter.
	FixupPeriodNS = 500 * int64(time.Millisecond)
)

// APBootTimeout bounds how long the BSP waits for an AP to set its
// booted flag after one retry of the startup IPI sequence (resolves
// the spec's open question about an unbounded bringup spin).
var APBootTimeout = 500 * time.Millisecond
