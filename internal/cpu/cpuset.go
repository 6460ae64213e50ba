// Package cpu implements per-CPU state (spec §3 "CPU record"), CPU
// affinity sets, and the interned CPU-group abstraction (spec §4.3).
//
// CPU sets are grounded on the affinity-bitmap shape seen in
// other_examples/006641cb_containers-nri-plugins__pkg-cpuallocator-allocator.go.go
// and c8a1e798_intel-cri-resource-manager__...allocator.go.go, backed
// by github.com/bits-and-blooms/bitset instead of a hand-rolled
// [N]uint64 mask.
package cpu

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/mpkernel/core/internal/kconfig"
)

// Set is a bitmap of CPU indices up to kconfig.MaxCPUs.
type Set struct {
	bits *bitset.BitSet
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{bits: bitset.New(uint(kconfig.MaxCPUs))} }

// All returns a set containing every CPU in [0, n).
func All(n int) *Set {
	s := NewSet()
	for i := 0; i < n; i++ {
		s.Add(i)
	}
	return s
}

// Add sets bit idx. Out-of-range indices are ignored (affinity masks
// are fixed-width by construction; callers validate idx < MaxCPUs
// before it reaches here).
func (s *Set) Add(idx int) *Set {
	if idx >= 0 && idx < kconfig.MaxCPUs {
		s.bits.Set(uint(idx))
	}
	return s
}

// Remove clears bit idx.
func (s *Set) Remove(idx int) *Set {
	if idx >= 0 && idx < kconfig.MaxCPUs {
		s.bits.Clear(uint(idx))
	}
	return s
}

// Has reports whether idx is a member.
func (s *Set) Has(idx int) bool {
	if idx < 0 || idx >= kconfig.MaxCPUs {
		return false
	}
	return s.bits.Test(uint(idx))
}

// Count returns the number of member CPUs.
func (s *Set) Count() int { return int(s.bits.Count()) }

// Members returns member CPU indices in ascending order.
func (s *Set) Members() []int {
	out := make([]int, 0, s.Count())
	for i, e := s.bits.NextSet(0); e; i, e = s.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Equal reports whether s and o have identical bit patterns; CPU
// groups are interned by this equality (spec §3 "two CPU groups with
// equal sets are the same object").
func (s *Set) Equal(o *Set) bool { return s.bits.Equal(o.bits) }

// key returns a value usable as a map key for interning, since
// bitset.BitSet itself is not comparable.
func (s *Set) key() string { return s.bits.String() }

func (s *Set) String() string {
	return fmt.Sprintf("cpuset%v", s.Members())
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set { return &Set{bits: s.bits.Clone()} }
