package platform

import (
	"bytes"
	"sync"
	"time"
)

// SimulatedFirmwareMap is a fixed, in-memory FirmwareMap for tests and
// cmd/ksim.
type SimulatedFirmwareMap struct {
	ranges []MemRange
}

// NewSimulatedFirmwareMap builds a map with a single free range
// [start, end) and nothing else, enough for the page allocator's
// contract.
func NewSimulatedFirmwareMap(start, end uintptr) *SimulatedFirmwareMap {
	return &SimulatedFirmwareMap{ranges: []MemRange{{Start: start, End: end, Kind: MemFree}}}
}

func (m *SimulatedFirmwareMap) Ranges() []MemRange { return m.ranges }

// SimulatedMPTable is an in-memory MPTable.
type SimulatedMPTable struct {
	procs   []ProcessorEntry
	lcBase  uintptr
}

func NewSimulatedMPTable(nprocs int, lcBase uintptr) *SimulatedMPTable {
	procs := make([]ProcessorEntry, nprocs)
	for i := range procs {
		procs[i] = ProcessorEntry{ID: i, IsBoot: i == 0, Enabled: true}
	}
	return &SimulatedMPTable{procs: procs, lcBase: lcBase}
}

func (t *SimulatedMPTable) Processors() []ProcessorEntry  { return t.procs }
func (t *SimulatedMPTable) LocalControllerBase() uintptr { return t.lcBase }

// SimulatedController is a goroutine-per-CPU stand-in for the local
// interrupt controller: each simulated CPU has its own instance bound
// to an id, and SendIPI/SendStartup deliver by calling into a shared
// registry rather than real MMIO.
type SimulatedController struct {
	mu        sync.Mutex
	id        int
	reg       *controllerRegistry
	timerStop chan struct{}
}

type controllerRegistry struct {
	mu        sync.Mutex
	onIPI     map[int]func(vector int)
	onStartup map[int]func(entryPage uint8)
	booted    map[int]bool
}

// NewSimulatedControllerSet builds one SimulatedController per id in
// ids, sharing a registry so they can IPI each other.
func NewSimulatedControllerSet(ids []int) map[int]*SimulatedController {
	reg := &controllerRegistry{
		onIPI:     make(map[int]func(vector int)),
		onStartup: make(map[int]func(entryPage uint8)),
		booted:    make(map[int]bool),
	}
	out := make(map[int]*SimulatedController, len(ids))
	for _, id := range ids {
		out[id] = &SimulatedController{id: id, reg: reg}
	}
	return out
}

func (c *SimulatedController) LocalID() int { return c.id }
func (c *SimulatedController) EOI()         {}

func (c *SimulatedController) ArmTimer(d time.Duration, periodic bool) {
	c.mu.Lock()
	if c.timerStop != nil {
		close(c.timerStop)
	}
	stop := make(chan struct{})
	c.timerStop = stop
	c.mu.Unlock()
	go func() {
		if periodic {
			t := time.NewTicker(d)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-t.C:
					c.reg.mu.Lock()
					h := c.reg.onIPI[c.id]
					c.reg.mu.Unlock()
					if h != nil {
						h(0xF0)
					}
				}
			}
		} else {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-stop:
				return
			case <-timer.C:
				c.reg.mu.Lock()
				h := c.reg.onIPI[c.id]
				c.reg.mu.Unlock()
				if h != nil {
					h(0xF0)
				}
			}
		}
	}()
}

func (c *SimulatedController) StopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timerStop != nil {
		close(c.timerStop)
		c.timerStop = nil
	}
}

func (c *SimulatedController) SendIPI(target int, vector int) {
	c.reg.mu.Lock()
	h := c.reg.onIPI[target]
	c.reg.mu.Unlock()
	if h != nil {
		h(vector)
	}
}

func (c *SimulatedController) SendStartup(target int, entryPage uint8) {
	c.reg.mu.Lock()
	h := c.reg.onStartup[target]
	c.reg.mu.Unlock()
	if h != nil {
		h(entryPage)
	}
}

// BindIPIHandler wires this CPU's timer-fire and reschedule-IPI
// delivery to handler, keyed by vector.
func (c *SimulatedController) BindIPIHandler(handler func(vector int)) {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	c.reg.onIPI[c.id] = handler
}

// BindStartupHandler wires this CPU's AP-entry simulation.
func (c *SimulatedController) BindStartupHandler(handler func(entryPage uint8)) {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	c.reg.onStartup[c.id] = handler
}

// MarkBooted records that this CPU finished its bootstrap, observed
// by SimulatedMPTable-driven bringup code polling IsBooted.
func (c *SimulatedController) MarkBooted() {
	c.reg.mu.Lock()
	c.reg.booted[c.id] = true
	c.reg.mu.Unlock()
}

func (c *SimulatedController) IsBooted(id int) bool {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.reg.booted[id]
}

// SimulatedRTC returns a fixed Unix-nanosecond timestamp.
type SimulatedRTC struct{ NowNS int64 }

func (r SimulatedRTC) ReadUnixNS() int64 { return r.NowNS }

// BufferConsole collects written bytes for assertions in tests.
type BufferConsole struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *BufferConsole) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *BufferConsole) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// SimulatedIRQTable is an in-memory vector->handler table.
type SimulatedIRQTable struct {
	mu       sync.Mutex
	handlers map[int]func()
}

func NewSimulatedIRQTable() *SimulatedIRQTable {
	return &SimulatedIRQTable{handlers: make(map[int]func())}
}

func (t *SimulatedIRQTable) Register(vector int, name string, handler func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[vector] = handler
	return nil
}

func (t *SimulatedIRQTable) Unregister(vector int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, vector)
	return nil
}

// Fire invokes the handler bound to vector, if any, used by tests to
// simulate hardware interrupt delivery.
func (t *SimulatedIRQTable) Fire(vector int) {
	t.mu.Lock()
	h := t.handlers[vector]
	t.mu.Unlock()
	if h != nil {
		h()
	}
}
