// Package timer implements the timer chain described in spec §4.11:
// an ordered set of nodes keyed by absolute expiration in nanoseconds,
// backed by a red-black tree with a cached earliest-expiry pointer,
// plus interval timers bound to a notional clock identity.
//
// Grounded on spec.md §4.11/§8 directly for the earliest-pointer
// invariant and catch-up semantics; backed by
// github.com/emirpasic/gods/trees/redblacktree instead of a
// hand-rolled rbtree since the spec explicitly calls for a red-black
// tree and gods is the real ecosystem rbtree seen across the
// retrieved corpus's dependency graphs (arctir-proctor,
// tomponline-lxd manifests).
package timer

import (
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// Node is one entry in the chain (spec §3 "Timer node"): an absolute
// expiration, an optional interval (non-zero => periodic), and the
// handler to invoke. Handler receives the number of whole intervals
// that were missed before this firing (0 for an on-time periodic fire
// or for a one-shot).
type Node struct {
	Expires  int64
	Interval int64
	Handler  func(missed int)

	key chainKey
}

type chainKey struct {
	expires int64
	seq     uint64
}

// compareKeys orders first by expiration, then by insertion sequence,
// so two nodes due at the identical nanosecond still occupy distinct
// tree slots (gods' Put overwrites on key collision otherwise).
func compareKeys(a, b interface{}) int {
	ka, kb := a.(chainKey), b.(chainKey)
	switch {
	case ka.expires < kb.expires:
		return -1
	case ka.expires > kb.expires:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// Chain is spec §3's "timer chain": an rbtree of nodes keyed by
// expiration, plus a cached earliest pointer and a lock. Spec §5
// requires the lock held only for insert/remove/extraction, with
// handlers invoked after it is released.
type Chain struct {
	mu       sync.Mutex
	tree     *redblacktree.Tree
	earliest *Node
	nextSeq  uint64
	byNode   map[*Node]chainKey
}

// New returns an empty timer chain.
func New() *Chain {
	return &Chain{
		tree:   redblacktree.NewWith(compareKeys),
		byNode: make(map[*Node]chainKey),
	}
}

// Add inserts node, keyed by its Expires field, in O(log n), updating
// the cached earliest pointer if node now precedes it.
func (c *Chain) Add(node *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(node)
}

func (c *Chain) insertLocked(node *Node) {
	c.nextSeq++
	key := chainKey{expires: node.Expires, seq: c.nextSeq}
	node.key = key
	c.tree.Put(key, node)
	c.byNode[node] = key
	if c.earliest == nil || node.Expires < c.earliest.Expires {
		c.earliest = node
	}
}

// Remove drops node from the chain in O(log n) if present, updating
// earliest if node was it. A round-trip Add(t) then Remove(t) leaves
// the tree in the same shape as before Add, per spec §8.
func (c *Chain) Remove(node *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(node)
}

func (c *Chain) removeLocked(node *Node) {
	key, ok := c.byNode[node]
	if !ok {
		return
	}
	c.tree.Remove(key)
	delete(c.byNode, node)
	if c.earliest == node {
		c.recomputeEarliestLocked()
	}
}

func (c *Chain) recomputeEarliestLocked() {
	left := c.tree.Left()
	if left == nil {
		c.earliest = nil
		return
	}
	c.earliest = left.Value.(*Node)
}

// Earliest returns the node with the smallest Expires, or nil if the
// chain is empty. Spec §8: earliest always equals the minimum Expires
// among present nodes.
func (c *Chain) Earliest() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.earliest
}

// Len reports how many nodes are currently in the chain.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Size()
}

// Process implements spec §4.11's process(now): repeatedly extracts
// earliest while earliest.Expires <= now, invoking each handler (with
// the chain lock released) and, for periodic nodes, reinserting with
// Expires advanced by whole intervals until it exceeds now, reporting
// the number of missed intervals to the handler.
func (c *Chain) Process(now int64) (fired int) {
	type due struct {
		node   *Node
		missed int
	}
	var toFire []due

	c.mu.Lock()
	for c.earliest != nil && c.earliest.Expires <= now {
		node := c.earliest
		c.removeLocked(node)

		missed := 0
		if node.Interval > 0 {
			for node.Expires <= now {
				node.Expires += node.Interval
				missed++
			}
			missed-- // the firing itself is not "missed"
			if missed < 0 {
				missed = 0
			}
			c.insertLocked(node)
		}
		toFire = append(toFire, due{node: node, missed: missed})
	}
	c.mu.Unlock()

	for _, d := range toFire {
		if d.node.Handler != nil {
			d.node.Handler(d.missed)
		}
		fired++
	}
	return fired
}
