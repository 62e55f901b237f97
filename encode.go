package leela

import (
	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/mcts"
	"gorgonia.org/vecf32"
)

// EncodePosition encodes a position into network input planes from the side
// to move's perspective. Positions encode themselves from White's point of
// view with signed planes; flipping the sign of every plane when Black is to
// move makes "own pieces" always positive, and flips the side-to-move plane
// with it.
func EncodePosition(pos game.Position, prealloc []float32) []float32 {
	planes := pos.Planes(prealloc[:0])
	if pos.SideToMove() == game.Black {
		vecf32.Scale(planes, -1)
	}
	return planes
}

// PolicyTarget turns the root's visit distribution into a policy training
// target over the full action space.
func PolicyTarget(root *mcts.Node, actionSpace int) []float32 {
	target := make([]float32, actionSpace)
	if !root.HasChildren() {
		return target
	}
	var total float32
	for _, child := range root.Children() {
		total += float32(child.Visits())
	}
	if total == 0 {
		return target
	}
	for _, child := range root.Children() {
		target[child.Move().Index()] = float32(child.Visits()) / total
	}
	return target
}
