package cpu_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpkernel/core/internal/cpu"
)

// fakeController is the minimal platform.LocalController a Table test
// needs: only LocalID matters for WithLocal's CPU resolution.
type fakeController struct{ id int }

func (c *fakeController) LocalID() int                          { return c.id }
func (c *fakeController) EOI()                                   {}
func (c *fakeController) ArmTimer(time.Duration, bool)           {}
func (c *fakeController) StopTimer()                             {}
func (c *fakeController) SendIPI(target int, vector int)         {}
func (c *fakeController) SendStartup(target int, entryPage uint8) {}

func TestTable_RecordsAreDistinctAndIndexed(t *testing.T) {
	table := cpu.NewTable(3)
	require.Equal(t, 3, table.N())

	for i := 0; i < 3; i++ {
		assert.Equal(t, i, table.Record(i).Idx)
	}
	assert.NotSame(t, table.Record(0), table.Record(1))
}

func TestTable_BindControllerAndWithLocal(t *testing.T) {
	table := cpu.NewTable(2)
	lc := &fakeController{id: 1}
	table.BindController(1, lc)

	var seenIdx int
	table.WithLocal(lc, func(r *cpu.Record) {
		seenIdx = r.Idx
		r.Current = cpu.ThreadHandle(42)
	})

	assert.Equal(t, 1, seenIdx)
	assert.Equal(t, cpu.ThreadHandle(42), table.Record(1).Current)
}

func TestRecord_LockUnlockRoundTrip(t *testing.T) {
	r := &cpu.Record{Idx: 0}
	r.Lock()
	r.Current = cpu.NoThread
	r.Unlock()
	assert.Equal(t, cpu.NoThread, r.Current)
}
