// Package dualnet implements the policy+value residual network the search
// consults: a shared convolutional trunk with a softmax policy head indexed
// by move and a tanh value head.
package dualnet

import (
	"github.com/liujh168/leela-chess/game"
)

// Config describes the network geometry.
type Config struct {
	Filters      int     // convolution filter count of the trunk
	SharedLayers int     // residual blocks in the shared trunk
	FC           int     // width of the value head's hidden layer
	L2           float64 // L2 regularization strength

	BatchSize     int
	Height, Width int // board geometry
	Features      int // input plane count

	ActionSpace int  // policy vector width
	FwdOnly     bool // inference-only graph, no gradients
}

// DefaultConfig derives a small network from a position's geometry.
func DefaultConfig(pos game.Position) Config {
	h, w := pos.BoardSize()
	features := len(pos.Planes(nil)) / (h * w)
	filters := nextPow2((h * w) / 3)
	return Config{
		Filters:      filters,
		SharedLayers: h,
		FC:           2 * filters,
		L2:           1e-4,

		BatchSize: 256,
		Height:    h,
		Width:     w,
		Features:  features,

		ActionSpace: pos.ActionSpace(),
	}
}

func (c Config) IsValid() bool {
	return c.Filters >= 1 &&
		c.SharedLayers >= 0 &&
		c.FC > 1 &&
		c.BatchSize >= 1 &&
		c.Features > 0 &&
		c.ActionSpace >= 3
}

func nextPow2(a int) int {
	n := a - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++

	half := n / 2
	if (a - half) < (n - a) {
		return half
	}
	return n
}
