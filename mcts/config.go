package mcts

import "runtime"

// Config configures a search. Values are read once when the search starts.
type Config struct {
	// PUCT is the exploration constant of the selection formula.
	PUCT float32

	// NumThreads is the number of simultaneous workers sharing the tree.
	// The calling thread is one of them.
	NumThreads int

	// MaxPlayouts caps the number of successful playouts per think. 0 means
	// effectively unbounded.
	MaxPlayouts int32

	// MaxTreeSize caps the number of expanded nodes. Beyond it, leaves are
	// scored by the evaluator without growing the tree.
	MaxTreeSize int32

	// Noise mixes Dirichlet noise into the root priors before thinking.
	Noise      bool
	NoiseEps   float32
	NoiseAlpha float32

	// RandomCount is the game ply below which the best move is sampled
	// proportionally to visits instead of taken by argmax.
	RandomCount int

	// ResignPct is the winrate percentage below which the engine resigns,
	// once the root has more than 500 visits and the game is past
	// MinResignMoves plies.
	ResignPct      int
	MinResignMoves int

	// Quiet suppresses analysis and stats output.
	Quiet bool
}

// DefaultConfig returns the configuration used by the engine binary.
func DefaultConfig() Config {
	return Config{
		PUCT:           1.0,
		NumThreads:     runtime.NumCPU(),
		MaxPlayouts:    0,
		MaxTreeSize:    25_000_000,
		Noise:          false,
		NoiseEps:       0.25,
		NoiseAlpha:     0.3,
		RandomCount:    0,
		ResignPct:      10,
		MinResignMoves: 20,
	}
}

func (c Config) IsValid() bool {
	return c.PUCT > 0 && c.NumThreads >= 1 && c.MaxTreeSize > 0
}
