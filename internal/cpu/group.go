package cpu

import "sync"

// GroupID is a stable identifier for an interned CPU group.
type GroupID uint64

// Group is the interned form of a CPU set (spec §3 "CPU group"): a
// reference-counted record holding the set, a stable id, and the list
// of member CPU indices. Groups are immutable once published; the
// per-policy run-queues a policy lazily attaches to a group live in
// that policy's own registry (internal/sched), not here, so this
// package never needs to know about run-queue types.
type Group struct {
	ID      GroupID
	Set     *Set
	Members []int

	refs int32
}

// Registry interns CPU sets into Groups: the first caller with a
// given bit pattern constructs and publishes a new group; subsequent
// callers with an equal set receive the same *Group (spec §4.3).
type Registry struct {
	mu     sync.Mutex
	nextID GroupID
	byKey  map[string]*Group
}

// NewRegistry returns an empty group registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Group)}
}

// Intern returns the Group for set, creating and publishing one if no
// equal set has been interned yet.
func (r *Registry) Intern(set *Set) *Group {
	key := set.key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.byKey[key]; ok {
		g.refs++
		return g
	}
	r.nextID++
	g := &Group{ID: r.nextID, Set: set.Clone(), Members: set.Members(), refs: 1}
	r.byKey[key] = g
	return g
}

// Release drops a reference obtained from Intern. The registry does
// not evict groups at zero references: run-queues attached to a group
// by policies may still hold state worth inspecting (e.g. by
// diagnostics) after the last thread with that affinity exits, and
// the group set space is small and bounded by MaxCPUs in practice.
func (r *Registry) Release(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.refs > 0 {
		g.refs--
	}
}

// Lookup returns the group for set if one has already been interned.
func (r *Registry) Lookup(set *Set) (*Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byKey[set.key()]
	return g, ok
}
