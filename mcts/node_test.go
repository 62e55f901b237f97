package mcts

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	rng "github.com/leesper/go_rng"
	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/game/minichess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformNN is the deterministic stub evaluator: uniform priors and a fixed
// value from the side to move's perspective.
type uniformNN struct {
	value float32
}

func (u uniformNN) Infer(pos game.Position) ([]float32, float32) {
	policy := make([]float32, pos.ActionSpace())
	uniform := 1 / float32(len(policy))
	for i := range policy {
		policy[i] = uniform
	}
	return policy, u.value
}

// expandedNode builds a parent with already published children, for tests
// that poke at selection and root policies directly.
func expandedNode(priors []float32) *Node {
	n := NewNode(game.MoveNone, 1, 0.5)
	for i, p := range priors {
		n.children = append(n.children, NewNode(game.MakeMove(0, i+1), p, 0.5))
	}
	n.expanded.Store(true)
	return n
}

func TestCreateChildrenWinsOnce(t *testing.T) {
	pos := minichess.New()
	nn := uniformNN{value: 0.5}

	n := NewNode(game.MoveNone, 1, 0.5)
	var nodes atomic.Int32
	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var eval float32
			if n.CreateChildren(&nodes, pos.Duplicate(), nn, &eval) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one expansion may win")
	assert.Equal(t, int32(1), nodes.Load())
	require.True(t, n.HasChildren())
	assert.Len(t, n.Children(), len(pos.LegalMoves()))

	// losers that come later still lose
	var eval float32
	assert.False(t, n.CreateChildren(&nodes, pos.Duplicate(), nn, &eval))
}

func TestCreateChildrenNormalizesPriors(t *testing.T) {
	pos := minichess.New()
	n := NewNode(game.MoveNone, 1, 0.5)
	var nodes atomic.Int32
	var eval float32
	require.True(t, n.CreateChildren(&nodes, pos, uniformNN{value: 0.5}, &eval))

	var sum float32
	for _, child := range n.Children() {
		sum += child.Prior()
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestUpdateAndEval(t *testing.T) {
	n := NewNode(game.MoveNone, 1, 0.5)
	assert.True(t, n.FirstVisit())

	n.Update(1)
	n.Update(0)
	assert.False(t, n.FirstVisit())
	assert.Equal(t, int32(2), n.Visits())
	assert.InDelta(t, 0.5, n.Eval(game.White), 1e-6)
	assert.InDelta(t, 0.5, n.Eval(game.Black), 1e-6)

	n.Update(1)
	assert.InDelta(t, 2.0/3.0, n.Eval(game.White), 1e-6)
	assert.InDelta(t, 1.0/3.0, n.Eval(game.Black), 1e-6)
}

func TestVirtualLossBiasesSelection(t *testing.T) {
	parent := expandedNode([]float32{0.5, 0.5})
	a, b := parent.children[0], parent.children[1]

	// equal stats, a carries a virtual loss
	a.Update(0.5)
	b.Update(0.5)
	a.VirtualLoss()

	assert.Same(t, b, parent.UCTSelectChild(game.White, 1.0))
	assert.Same(t, b, parent.UCTSelectChild(game.Black, 1.0))

	a.VirtualLossUndo()
	assert.Equal(t, int32(0), a.VirtualLosses())
}

func TestDirichletNoiseKeepsPriorsNormalized(t *testing.T) {
	parent := expandedNode([]float32{0.25, 0.25, 0.25, 0.25})
	gen := rng.NewDirichletGenerator(1)

	parent.DirichletNoise(0.25, 0.3, gen)

	var sum float32
	changed := false
	for i, child := range parent.children {
		sum += child.Prior()
		if child.Prior() != 0.25 {
			changed = true
		}
		assert.GreaterOrEqual(t, child.Prior(), float32(0), "child %d", i)
	}
	assert.True(t, changed, "noise must perturb the priors")
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestSortRootChildren(t *testing.T) {
	parent := expandedNode([]float32{0.1, 0.2, 0.7})
	parent.children[0].SetStats(5, 2.5)
	parent.children[1].SetStats(10, 5)

	parent.SortRootChildren(game.White)

	assert.Equal(t, int32(10), parent.children[0].Visits())
	assert.Equal(t, int32(5), parent.children[1].Visits())
	assert.Equal(t, int32(0), parent.children[2].Visits())
	assert.Same(t, parent.children[0], parent.FirstChild())
	assert.Same(t, parent.children[0], parent.BestRootChild(game.White))
}

func TestRandomizeFirstProportionally(t *testing.T) {
	parent := expandedNode([]float32{0.5, 0.5})
	small, big := parent.children[0], parent.children[1]
	small.SetStats(1, 0.5)
	big.SetStats(99, 50)

	r := rand.New(rand.NewSource(42))
	const trials = 2000
	bigFirst := 0
	for i := 0; i < trials; i++ {
		parent.SortRootChildren(game.White) // reset deterministic order
		parent.RandomizeFirstProportionally(r)
		if parent.children[0] == big {
			bigFirst++
		}
	}
	assert.InDelta(t, 0.99, float64(bigFirst)/trials, 0.02)
}
