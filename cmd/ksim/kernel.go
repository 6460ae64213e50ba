package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mpkernel/core/internal/clockevent"
	"github.com/mpkernel/core/internal/cpu"
	"github.com/mpkernel/core/internal/kconfig"
	"github.com/mpkernel/core/internal/kmutex"
	"github.com/mpkernel/core/internal/ktime"
	"github.com/mpkernel/core/internal/memory/heap"
	"github.com/mpkernel/core/internal/memory/page"
	"github.com/mpkernel/core/internal/metrics"
	"github.com/mpkernel/core/internal/platform"
	"github.com/mpkernel/core/internal/sched"
	"github.com/mpkernel/core/internal/smp"
	"github.com/mpkernel/core/internal/timer"
)

// Config holds the boot-time parameters cmd/ksim's CLI flags fill in,
// standing in for the build-time Kconfig choices a real boot would
// already have baked in.
type Config struct {
	CPUs      int
	HeapMB    int
	RunFor    time.Duration
	LogLevel  string
}

// Kernel wires every internal/ package into one running instance,
// entirely over internal/platform's Simulated* collaborators — the
// host-testable stand-in for a real boot described in DESIGN.md.
type Kernel struct {
	cfg Config
	log *zap.Logger
	reg *prometheus.Registry

	cpus   *cpu.Table
	groups *cpu.Registry
	sched  *sched.Scheduler

	pages *page.Allocator
	heap  *heap.Heap

	clock  *ktime.Counter
	timers *timer.Chain
	events *clockevent.Registry

	mp          *platform.SimulatedMPTable
	controllers map[int]*platform.SimulatedController
	irqs        map[int]*platform.SimulatedIRQTable
	eventers    map[int]clockevent.Eventer

	stopCPUs []chan struct{}
}

// NewKernel allocates the fixed-size tables and registries; Boot does
// the rest of the sequencing.
func NewKernel(cfg Config, log *zap.Logger) *Kernel {
	reg := prometheus.NewRegistry()
	return &Kernel{
		cfg:         cfg,
		log:         log,
		reg:         reg,
		cpus:        cpu.NewTable(cfg.CPUs),
		groups:      cpu.NewRegistry(),
		controllers: make(map[int]*platform.SimulatedController),
		irqs:        make(map[int]*platform.SimulatedIRQTable),
		eventers:    make(map[int]clockevent.Eventer),
	}
}

// Boot runs the sequence spec §1 describes in prose: parse the
// firmware memory map, stand up the page allocator and kernel heap,
// bring up every application processor, seed the time counter, bind
// each CPU's clock eventer to the scheduler tick, and register the
// FIFO/RR policies so Spawn has somewhere to place threads.
func (k *Kernel) Boot(ctx context.Context) error {
	k.log.Info("booting", zap.Int("cpus", k.cfg.CPUs), zap.Int("heap_mb", k.cfg.HeapMB))

	firmware := platform.NewSimulatedFirmwareMap(0, uintptr(k.cfg.HeapMB+16)<<20)
	pageMetrics := metrics.NewPageMetrics(k.reg)
	pages, err := page.NewFromFirmwareMap(firmware, pageMetrics)
	if err != nil {
		return fmt.Errorf("page allocator: %w", err)
	}
	k.pages = pages

	kheap, err := heap.New(pages)
	if err != nil {
		return fmt.Errorf("kernel heap: %w", err)
	}
	k.heap = kheap

	k.mp = platform.NewSimulatedMPTable(k.cfg.CPUs, 0xfee00000)
	ids := make([]int, k.cfg.CPUs)
	for i := range ids {
		ids[i] = i
	}
	for id, c := range platform.NewSimulatedControllerSet(ids) {
		k.controllers[id] = c
		k.cpus.BindController(id, c)
		k.irqs[id] = platform.NewSimulatedIRQTable()
		// A simulated AP's entry path just reports itself booted.
		c.BindStartupHandler(func(uint8) { c.MarkBooted() })
	}

	schedMetrics := metrics.NewSchedMetrics(k.reg)
	k.sched = sched.New(k.cpus, k.groups, k.log, schedMetrics)
	k.sched.RegisterPolicy(sched.FIFO)
	k.sched.RegisterPolicy(sched.RR)

	bsp := k.controllers[0]
	awaitBooted := func(cpuIdx int) bool { return bsp.IsBooted(cpuIdx) }
	results, err := smp.Bringup(ctx, k.cpus, k.mp, bsp, awaitBooted)
	if err != nil {
		return fmt.Errorf("smp bringup: %w", err)
	}
	for _, r := range results {
		if r.State == smp.APFailed {
			k.log.Warn("application processor failed to boot; continuing without it", zap.Int("cpu", r.CPU))
			continue
		}
		if r.CPU != 0 {
			k.controllers[r.CPU].MarkBooted()
		}
	}

	rtc := platform.SimulatedRTC{NowNS: time.Now().UnixNano()}
	base := time.Now()
	src := ktime.Source{
		Name:        "host-monotonic",
		Read:        func() uint64 { return uint64(time.Since(base).Nanoseconds()) },
		FrequencyHz: uint64(time.Second),
		Bits:        64,
		FixupPeriod: time.Duration(kconfig.FixupPeriodNS),
	}
	clock, err := ktime.New(src, rtc.ReadUnixNS())
	if err != nil {
		return fmt.Errorf("time counter: %w", err)
	}
	k.clock = clock
	k.timers = timer.New()
	k.events = clockevent.NewRegistry()

	for _, id := range ids {
		ev := clockevent.NewAPICEventer(id, k.controllers[id], k.irqs[id])
		k.events.Register(ev)
		selected, err := k.events.Select(clockevent.FlagPeriodic|clockevent.FlagPerCPU, 0, time.Duration(1e9/kconfig.HZ))
		if err != nil {
			return fmt.Errorf("clock eventer select for cpu %d: %w", id, err)
		}
		k.eventers[id] = selected
		cpuIdx := id
		k.controllers[id].BindIPIHandler(func(vector int) {
			k.irqs[cpuIdx].Fire(vector)
		})
		if err := k.irqs[id].Register(0xF3, "reschedule-ipi", func() {
			k.sched.ProcessPendingIPI(cpuIdx)
		}); err != nil {
			return fmt.Errorf("reschedule irq register for cpu %d: %w", id, err)
		}
		if err := selected.Start(clockevent.ModePeriodic, time.Duration(1e9/kconfig.HZ), func() {
			k.clock.Fixup()
			k.timers.Process(k.clock.GetMonotonicNS())
			k.sched.Tick(cpuIdx)
			k.sched.ProcessPendingIPI(cpuIdx)
		}); err != nil {
			return fmt.Errorf("clock eventer start for cpu %d: %w", id, err)
		}
		stop := make(chan struct{})
		k.stopCPUs = append(k.stopCPUs, stop)
		if _, err := k.sched.SpawnIdle(id, func(stopIdle <-chan struct{}) {
			for {
				select {
				case <-stopIdle:
					return
				case <-time.After(time.Millisecond):
				}
			}
		}); err != nil {
			return fmt.Errorf("spawn idle for cpu %d: %w", id, err)
		}
		go k.sched.RunCPU(id, stop)
	}

	k.log.Info("boot complete", zap.Int("booted_cpus", len(ids)))
	return nil
}

// Shutdown stops every CPU's dispatch loop and each eventer.
func (k *Kernel) Shutdown() {
	for _, stop := range k.stopCPUs {
		close(stop)
	}
	for _, ev := range k.eventers {
		ev.Stop()
	}
}

// RunDemo spawns a small FIFO workload exercising the mutex
// priority-inheritance path and a timed sleep, then waits for it to
// finish or for cfg.RunFor to elapse, whichever comes first — enough
// to demonstrate every wired subsystem actually moving.
func (k *Kernel) RunDemo() error {
	counter := 0
	m := kmutex.New(kmutex.Attrs{Type: kmutex.TypeDefault, Protocol: kmutex.ProtocolInherit, Wakeup: kmutex.WakeupPriority}, k.sched)

	var joinIDs []sched.ThreadID
	for i := 0; i < 3; i++ {
		prio := 10 + i*10
		// selfCh hands the thread its own id once Spawn returns it; the
		// channel (rather than a plain closed-over variable) gives the
		// handoff a happens-before edge against the entry goroutine,
		// which always blocks for it before touching the mutex.
		selfCh := make(chan sched.ThreadID, 1)
		id, err := k.sched.Spawn(sched.Attrs{
			Name:     fmt.Sprintf("worker-%d", i),
			PolicyID: sched.PolicyFIFO,
			Params:   sched.FIFOParams{Prio: prio},
			Joinable: true,
		}, func(arg interface{}) interface{} {
			self := <-selfCh
			for n := 0; n < 5; n++ {
				if err := m.Lock(self); err != nil {
					k.log.Warn("worker mutex lock failed", zap.Error(err))
					return nil
				}
				counter++
				_ = m.Unlock(self)
				timer.Sleep(k.timers, k.sched, self, k.clock.GetMonotonicNS(), int64(time.Millisecond))
			}
			return counter
		}, nil)
		if err != nil {
			return fmt.Errorf("spawn worker %d: %w", i, err)
		}
		selfCh <- id
		joinIDs = append(joinIDs, id)
	}

	done := make(chan struct{})
	go func() {
		for _, id := range joinIDs {
			_, _ = k.sched.Join(id)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(k.cfg.RunFor):
		k.log.Warn("demo workload did not finish within run-for", zap.Duration("run_for", k.cfg.RunFor))
	}
	k.log.Info("demo workload finished", zap.Int("final_counter", counter))
	return nil
}
