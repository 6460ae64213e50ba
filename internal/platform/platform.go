// Package platform narrows every external collaborator named in the
// spec's "External Interfaces" section into a typed Go interface, in
// place of the teacher's direct unsafe.Pointer reads of well-known
// physical addresses (e.g. biscuit's lap_id() reading 0xfee00000
// straight off the LAPIC). Production code wires these to real MMIO;
// cmd/ksim and tests wire them to the Simulated* implementations in
// this package.
package platform

import "time"

// MemRangeKind classifies one entry of the firmware memory map.
type MemRangeKind int

const (
	MemFree MemRangeKind = iota
	MemReserved
	MemACPIReclaim
	MemACPINVS
	MemBad
)

// MemRange is one firmware-reported physical address range.
type MemRange struct {
	Start uintptr
	End   uintptr // exclusive
	Kind  MemRangeKind
}

// FirmwareMap is the boot-time memory map handoff.
type FirmwareMap interface {
	Ranges() []MemRange
}

// ProcessorEntry is one processor record from the MP configuration
// table (or ACPI MADT equivalent).
type ProcessorEntry struct {
	ID      int
	IsBoot  bool
	Enabled bool
}

// MPTable is the parsed firmware multiprocessor descriptor.
type MPTable interface {
	Processors() []ProcessorEntry
	LocalControllerBase() uintptr
}

// LocalController is the per-CPU local interrupt controller (LAPIC or
// equivalent): identifies the running CPU, arms its timer, and sends
// IPIs.
type LocalController interface {
	// LocalID returns the identifier of the CPU this call executes on.
	LocalID() int
	// EOI signals end-of-interrupt for the current vector.
	EOI()
	// ArmTimer programs the local timer for one shot after d, or
	// periodically every d if periodic is true.
	ArmTimer(d time.Duration, periodic bool)
	// StopTimer disables the local timer.
	StopTimer()
	// SendIPI sends vector to target's local id. vector 0xF3 is the
	// reschedule IPI per the spec's vector wiring.
	SendIPI(target int, vector int)
	// SendStartup issues the INIT/SIPI-style startup sequence to
	// target, directing it to begin execution at entryPage (a
	// physical page number holding the trampoline).
	SendStartup(target int, entryPage uint8)
}

// RTC is the real-time clock, read once at boot to seed wall time.
type RTC interface {
	ReadUnixNS() int64
}

// ConsoleSink is the byte-sink collaborator logging is layered over
// (serial, VGA text, or a test buffer).
type ConsoleSink interface {
	Write(p []byte) (int, error)
}

// IRQTable registers/unregisters vector handlers, per the spec's
// irq_register/irq_unregister operations.
type IRQTable interface {
	Register(vector int, name string, handler func()) error
	Unregister(vector int) error
}
