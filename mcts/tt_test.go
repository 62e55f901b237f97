package mcts

import (
	"testing"

	"github.com/liujh168/leela-chess/game"
	"github.com/stretchr/testify/assert"
)

func TestTTSyncWithoutEntryIsNoop(t *testing.T) {
	tt := NewTTable(16)
	n := NewNode(game.MoveNone, 1, 0.5)
	n.Update(1)

	tt.Sync(0xdead, n)
	assert.Equal(t, int32(1), n.Visits())
	assert.InDelta(t, 1.0, n.WhiteEvals(), 1e-9)
}

func TestTTUpdateThenSyncPropagates(t *testing.T) {
	tt := NewTTable(16)
	const hash = uint64(0xabcdef)

	first := NewNode(game.MoveNone, 1, 0.5)
	for i := 0; i < 10; i++ {
		first.Update(0.8)
	}
	tt.Update(hash, first)

	// a second node reaching the same position adopts the richer stats
	second := NewNode(game.MoveNone, 1, 0.5)
	tt.Sync(hash, second)
	assert.Equal(t, int32(10), second.Visits())
	assert.InDelta(t, 8.0, second.WhiteEvals(), 1e-6)
}

func TestTTSyncNeverDowngrades(t *testing.T) {
	tt := NewTTable(16)
	const hash = uint64(0x1234)

	poor := NewNode(game.MoveNone, 1, 0.5)
	poor.Update(0.5)
	tt.Update(hash, poor)

	rich := NewNode(game.MoveNone, 1, 0.5)
	for i := 0; i < 5; i++ {
		rich.Update(1)
	}
	tt.Sync(hash, rich)
	assert.Equal(t, int32(5), rich.Visits(), "a node already ahead of the snapshot keeps its own stats")
	assert.InDelta(t, 5.0, rich.WhiteEvals(), 1e-9)
}

func TestTTCollisionOverwrites(t *testing.T) {
	tt := NewTTable(16)
	h1 := uint64(0x10)
	h2 := h1 + 16 // same bucket, direct-mapped

	a := NewNode(game.MoveNone, 1, 0.5)
	a.Update(1)
	tt.Update(h1, a)

	b := NewNode(game.MoveNone, 1, 0.5)
	b.Update(0)
	tt.Update(h2, b)

	// h1's snapshot was evicted; syncing against it finds nothing
	fresh := NewNode(game.MoveNone, 1, 0.5)
	tt.Sync(h1, fresh)
	assert.Equal(t, int32(0), fresh.Visits())

	adopted := NewNode(game.MoveNone, 1, 0.5)
	tt.Sync(h2, adopted)
	assert.Equal(t, int32(1), adopted.Visits())
}
