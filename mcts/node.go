package mcts

import (
	"math"
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/chewxy/math32"
	rng "github.com/leesper/go_rng"
	"github.com/liujh168/leela-chess/game"
)

// Node is one position in the shared search tree. Visit counts, virtual
// losses and the accumulated evaluation are atomics so that selection can
// read them without a lock; stale reads are fine, virtual loss is what makes
// concurrent descents diverge.
//
// The accumulated evaluation is kept in White's frame. Eval converts to the
// asking side's perspective, so the observable contract is symmetric.
type Node struct {
	move  game.Move
	prior float32

	// netEval is the network's value estimate at expansion time (White's
	// frame). It seeds first-play urgency for unvisited children. Written
	// before the children are published, constant afterwards.
	netEval float32

	visits      atomic.Int32
	virtualLoss atomic.Int32
	whiteEvals  atomic.Uint64 // float64 bits

	// expanding is the one-shot expansion guard; expanded is the
	// publication flag readers observe through HasChildren.
	expanding atomic.Bool
	expanded  atomic.Bool
	children  []*Node
}

// NewNode creates an unexpanded node for the edge move, with the prior the
// network assigned to it and the parent's value estimate as a placeholder
// until the node is expanded itself.
func NewNode(move game.Move, prior, netEval float32) *Node {
	return &Node{move: move, prior: prior, netEval: netEval}
}

func (n *Node) Move() game.Move { return n.move }
func (n *Node) Prior() float32  { return n.prior }

// FirstVisit reports whether the node has never been backpropagated through.
func (n *Node) FirstVisit() bool { return n.visits.Load() == 0 }

// HasChildren reports whether the node has been expanded. Once true it never
// becomes false, and the child list is fixed from then on.
func (n *Node) HasChildren() bool { return n.expanded.Load() }

// Children returns the child list. Only valid after HasChildren.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) FirstChild() *Node {
	if !n.expanded.Load() || len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

func (n *Node) Visits() int32 { return n.visits.Load() }

// VirtualLosses returns the in-flight virtual loss count. Zero once all
// workers have joined.
func (n *Node) VirtualLosses() int32 { return n.virtualLoss.Load() }

// VirtualLoss adds a pending-visit debit that biases selection away from
// subtrees other workers are already descending.
func (n *Node) VirtualLoss() { n.virtualLoss.Add(VirtualLossCount) }

func (n *Node) VirtualLossUndo() { n.virtualLoss.Add(-VirtualLossCount) }

// WhiteEvals returns the accumulated evaluation sum in White's frame.
func (n *Node) WhiteEvals() float64 {
	return math.Float64frombits(n.whiteEvals.Load())
}

// Update records one backpropagation: a visit plus eval (White's frame)
// added to the accumulator.
func (n *Node) Update(eval float32) {
	n.visits.Add(1)
	for {
		old := n.whiteEvals.Load()
		next := math.Float64bits(math.Float64frombits(old) + float64(eval))
		if n.whiteEvals.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetStats overwrites the visit and evaluation counters with a canonical
// snapshot from the transposition table.
func (n *Node) SetStats(visits int32, whiteEvals float64) {
	n.visits.Store(visits)
	n.whiteEvals.Store(math.Float64bits(whiteEvals))
}

// Eval is the mean evaluation from color's perspective. Virtual losses are
// counted as losses for the asking side, which is what steers concurrent
// selection apart; after workers join they are zero and this is the plain
// mean.
func (n *Node) Eval(color game.Color) float32 {
	visits := n.visits.Load()
	vl := n.virtualLoss.Load()
	total := visits + vl
	if total == 0 {
		return 0
	}
	whiteEv := n.WhiteEvals()
	if color == game.Black {
		whiteEv += float64(vl)
	}
	rate := float32(whiteEv / float64(total))
	if color == game.White {
		return rate
	}
	return 1 - rate
}

// NetEval is the raw network value estimate from color's perspective.
func (n *Node) NetEval(color game.Color) float32 {
	if color == game.White {
		return n.netEval
	}
	return 1 - n.netEval
}

// UCTSelectChild picks the child maximizing
//
//	U(s,a) = Q(s,a) + puct * P(s,a) * sqrt(parent visits) / (1 + visits)
//
// Unvisited children take the parent's network estimate as first-play
// urgency. Never returns nil for an expanded node.
func (n *Node) UCTSelectChild(color game.Color, puct float32) *Node {
	var parentVisits int32
	for _, child := range n.children {
		parentVisits += child.visits.Load()
	}
	numerator := math32.Sqrt(float32(parentVisits))
	fpu := n.NetEval(color)

	var best *Node
	bestValue := math32.Inf(-1)
	for _, child := range n.children {
		qsa := fpu
		if child.visits.Load()+child.virtualLoss.Load() > 0 {
			qsa = child.Eval(color)
		}
		denominator := 1 + float32(child.visits.Load()+child.virtualLoss.Load())
		usa := qsa + puct*child.prior*numerator/denominator
		if usa > bestValue {
			bestValue = usa
			best = child
		}
	}
	if best == nil {
		panic("mcts: select on a node without children")
	}
	return best
}

// CreateChildren expands the node by consulting the evaluator: one child per
// legal move, priors renormalized over the legal set. The expansion is a
// one-shot: exactly one caller wins the race and gets true with the value
// estimate (White's frame) written to eval; losers get false, observe
// HasChildren and proceed. nodeCount counts expanded nodes and is bumped by
// one on success.
func (n *Node) CreateChildren(nodeCount *atomic.Int32, pos game.Position, nn Inferencer, eval *float32) bool {
	if n.expanded.Load() {
		return false
	}
	if !n.expanding.CompareAndSwap(false, true) {
		return false
	}

	policy, value := nn.Infer(pos)
	whiteEval := value
	if pos.SideToMove() == game.Black {
		whiteEval = 1 - value
	}

	moves := pos.LegalMoves()
	if len(moves) == 0 {
		// terminal position; nothing to publish. The guard stays taken so
		// the node can never expand.
		return false
	}
	priors := make([]float32, len(moves))
	var legalSum float32
	for i, m := range moves {
		priors[i] = policy[m.Index()]
		legalSum += priors[i]
	}
	if legalSum > math32.SmallestNonzeroFloat32 {
		for i := range priors {
			priors[i] /= legalSum
		}
	} else {
		uniform := 1 / float32(len(moves))
		for i := range priors {
			priors[i] = uniform
		}
	}

	children := make([]*Node, len(moves))
	for i, m := range moves {
		children[i] = NewNode(m, priors[i], whiteEval)
	}
	nodeCount.Add(1)

	n.netEval = whiteEval
	n.children = children
	*eval = whiteEval
	n.expanded.Store(true)
	return true
}

// EvalState consults the evaluator without expanding; used once the
// tree-size cap is hit. Returns the value in White's frame.
func (n *Node) EvalState(pos game.Position, nn Inferencer) float32 {
	_, value := nn.Infer(pos)
	if pos.SideToMove() == game.Black {
		return 1 - value
	}
	return value
}

// moreVisited orders a before b by visits, breaking ties on prior for
// unvisited nodes and on evaluation otherwise.
func moreVisited(a, b *Node, color game.Color) bool {
	av, bv := a.visits.Load(), b.visits.Load()
	if av != bv {
		return av > bv
	}
	if av == 0 {
		return a.prior > b.prior
	}
	return a.Eval(color) > b.Eval(color)
}

// SortRootChildren sorts the child list best-first for color. Callers must
// ensure no worker is running.
func (n *Node) SortRootChildren(color game.Color) {
	sort.Slice(n.children, func(i, j int) bool {
		return moreVisited(n.children[i], n.children[j], color)
	})
}

// BestRootChild returns the most visited child from color's point of view.
func (n *Node) BestRootChild(color game.Color) *Node {
	var best *Node
	for _, child := range n.children {
		if best == nil || moreVisited(child, best, color) {
			best = child
		}
	}
	return best
}

// RandomizeFirstProportionally samples a child with probability proportional
// to its visit count and swaps it to the front. Used to diversify early-game
// play.
func (n *Node) RandomizeFirstProportionally(r *rand.Rand) {
	var total int64
	for _, child := range n.children {
		total += int64(child.visits.Load())
	}
	if total == 0 {
		return
	}
	pick := r.Int63n(total)
	for i, child := range n.children {
		pick -= int64(child.visits.Load())
		if pick < 0 {
			n.children[0], n.children[i] = n.children[i], n.children[0]
			return
		}
	}
}

// DirichletNoise blends a Dirichlet(alpha) sample into the child priors at
// weight eps. Applied once at the root before the search starts.
func (n *Node) DirichletNoise(eps, alpha float32, gen *rng.DirichletGenerator) {
	alphas := make([]float64, len(n.children))
	for i := range alphas {
		alphas[i] = float64(alpha)
	}
	noise := gen.Dirichlet(alphas)
	for i, child := range n.children {
		child.prior = (1-eps)*child.prior + eps*float32(noise[i])
	}
}
