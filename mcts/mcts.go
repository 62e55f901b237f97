// Package mcts implements the tree-parallel Monte Carlo Tree Search at the
// heart of the engine. Many workers share one tree; they diverge because a
// virtual loss is applied to every node a simulation is currently descending
// through, and they share learned values across transpositions through a
// lock-free table keyed by position hash.
package mcts

import (
	"github.com/liujh168/leela-chess/game"
)

// Inferencer is the neural network seen from the search. Policy is indexed
// by Move.Index(); value is the expected outcome in [0,1] from the side to
// move's perspective.
type Inferencer interface {
	Infer(pos game.Position) (policy []float32, value float32)
}

// VirtualLossCount is the number of pending-visit debits added to a node
// while a simulation is descending through it.
const VirtualLossCount = 3
