package mcts

import (
	"math"
	"sync/atomic"
)

// TTable shares visit/evaluation statistics between tree paths that reach
// the same position. It is a fixed-capacity, direct-mapped store: an entry
// lives at its hash's bucket and a colliding hash simply overwrites it.
//
// Each field of an entry is read and written atomically but the entry as a
// whole is not: the statistics are advisory, and drift between fields is
// tolerated and self-correcting as later simulations overwrite them.
type TTable struct {
	mask    uint64
	entries []ttEntry
}

type ttEntry struct {
	hash       atomic.Uint64
	visits     atomic.Int32
	whiteEvals atomic.Uint64 // float64 bits
}

// DefaultTTSize is the bucket count the engine binary uses.
const DefaultTTSize = 1 << 20

// NewTTable creates a table with at least size buckets, rounded up to a
// power of two.
func NewTTable(size int) *TTable {
	n := 1
	for n < size {
		n <<= 1
	}
	return &TTable{
		mask:    uint64(n - 1),
		entries: make([]ttEntry, n),
	}
}

// Sync merges the canonical statistics snapshot for hash into the node, if
// one exists. Called at the top of each simulation, before virtual loss.
// The snapshot is only adopted when it knows more than the node does (a
// strictly higher visit count): a node syncing against its own last write
// must be a no-op, or concurrent backpropagations through it would be lost.
// A node that reaches a position another path has explored more deeply
// adopts that path's statistics, which is the point of the table.
func (t *TTable) Sync(hash uint64, n *Node) {
	e := &t.entries[hash&t.mask]
	if e.hash.Load() != hash {
		return
	}
	visits := e.visits.Load()
	if visits <= n.Visits() {
		return
	}
	n.SetStats(visits, math.Float64frombits(e.whiteEvals.Load()))
}

// Update writes the node's current statistics back as the canonical snapshot
// for hash, inserting or replacing whatever occupied the bucket. Called at
// the bottom of each simulation, after backpropagation.
func (t *TTable) Update(hash uint64, n *Node) {
	e := &t.entries[hash&t.mask]
	e.hash.Store(hash)
	e.visits.Store(n.Visits())
	e.whiteEvals.Store(math.Float64bits(n.WhiteEvals()))
}
