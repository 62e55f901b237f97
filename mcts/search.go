package mcts

import (
	"io"
	"math"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	rng "github.com/leesper/go_rng"
	"github.com/liujh168/leela-chess/game"
)

// Search drives one move decision: it owns the root of the shared tree, the
// playout and node counters, and the run flag the workers poll. A Search is
// used for a single Think or Ponder; the transposition table it is given is
// shared across moves.
type Search struct {
	cfg       Config
	rootState game.Position
	root      *Node
	nn        Inferencer
	tt        *TTable

	out          io.Writer
	inputPending func() bool
	recorder     func(game.Position, *Node)
	rand         *rand.Rand
	dirichlet    *rng.DirichletGenerator

	playouts    atomic.Int32
	nodes       atomic.Int32
	running     atomic.Bool
	maxPlayouts int32
}

// NewSearch creates a search rooted at pos. The position is never mutated by
// simulations; every worker duplicates it per iteration.
func NewSearch(pos game.Position, nn Inferencer, tt *TTable, cfg Config) *Search {
	if !cfg.IsValid() {
		panic("mcts: invalid config")
	}
	s := &Search{
		cfg:       cfg,
		rootState: pos,
		root:      NewNode(game.MoveNone, 1, 0.5),
		nn:        nn,
		tt:        tt,
		out:       os.Stdout,
	}
	s.SetSeed(time.Now().UnixNano())
	s.SetPlayoutLimit(cfg.MaxPlayouts)
	return s
}

// SetSeed reseeds the generators behind root noise and proportional
// sampling; tests use it for reproducibility.
func (s *Search) SetSeed(seed int64) {
	s.rand = rand.New(rand.NewSource(seed))
	s.dirichlet = rng.NewDirichletGenerator(seed)
}

// SetOutput redirects the search's human-readable output.
func (s *Search) SetOutput(w io.Writer) { s.out = w }

// SetInputPending installs the poll Ponder uses as its stop signal.
func (s *Search) SetInputPending(f func() bool) { s.inputPending = f }

// SetRecorder installs a training-sample hook called once after Think's
// workers have joined, with the root state and the root node.
func (s *Search) SetRecorder(f func(game.Position, *Node)) { s.recorder = f }

// SetPlayoutLimit caps successful playouts; 0 means effectively unbounded.
func (s *Search) SetPlayoutLimit(playouts int32) {
	if playouts == 0 {
		s.maxPlayouts = math.MaxInt32
	} else {
		s.maxPlayouts = playouts
	}
}

func (s *Search) Root() *Node     { return s.root }
func (s *Search) Playouts() int32 { return s.playouts.Load() }
func (s *Search) Nodes() int32    { return s.nodes.Load() }
func (s *Search) IsRunning() bool { return s.running.Load() }

// Stop requests cooperative cancellation; workers finish their in-flight
// simulation and exit at the loop head.
func (s *Search) Stop() { s.running.Store(false) }

func (s *Search) playoutLimitReached() bool {
	return s.playouts.Load() >= s.maxPlayouts
}

func (s *Search) incrementPlayouts() { s.playouts.Add(1) }

// PlaySimulation runs one recursive simulation from n, which mirrors pos.
// The transposition sync and virtual loss bracket the whole visit; the leaf
// branch separates terminal scoring, evaluator-driven expansion (bounded by
// the tree-size cap) and cap-mode scoring. An invalid result means a lost
// expansion race: no backprop happened, and the caller must not count a
// playout.
func (s *Search) PlaySimulation(pos game.Position, n *Node) SearchResult {
	color := pos.SideToMove()
	hash := pos.Key()

	var result SearchResult

	s.tt.Sync(hash, n)
	n.VirtualLoss()

	if !n.HasChildren() {
		drawn := pos.IsDraw()
		moves := pos.LegalMoves()
		switch {
		case drawn || len(moves) == 0:
			// game over; score it from White's frame. A mate means the side
			// to move has lost.
			var score float32
			if !drawn && pos.InCheck() {
				if color == game.White {
					score = -1
				} else {
					score = 1
				}
			}
			result = FromScore(score)
		case s.nodes.Load() < s.cfg.MaxTreeSize:
			var eval float32
			if n.CreateChildren(&s.nodes, pos, s.nn, &eval) {
				result = FromEval(eval)
			}
		default:
			result = FromEval(n.EvalState(pos, s.nn))
		}
	}

	if n.HasChildren() && !result.Valid() {
		next := n.UCTSelectChild(color, s.cfg.PUCT)
		m := next.Move()
		st := pos.Do(m)
		result = s.PlaySimulation(pos, next)
		pos.Undo(m, st)
	}

	if result.Valid() {
		n.Update(result.Eval())
	}
	n.VirtualLossUndo()
	s.tt.Update(hash, n)

	return result
}

// worker is the loop every search thread runs: duplicate the root state,
// play one simulation, count it if it backpropagated.
func (s *Search) worker(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		state := s.rootState.Duplicate()
		if result := s.PlaySimulation(state, s.root); result.Valid() {
			s.incrementPlayouts()
		}
		if !s.running.Load() || s.playoutLimitReached() {
			return
		}
	}
}

// Think searches the root position and returns the chosen move, MoveNone if
// there are no legal moves or the engine resigns.
func (s *Search) Think() game.Move {
	if s.playouts.Load() != 0 || s.nodes.Load() != 0 {
		panic("mcts: Think on an already used search")
	}
	start := time.Now()

	var rootEval float32
	if s.root.CreateChildren(&s.nodes, s.rootState, s.nn, &rootEval) {
		s.root.Update(rootEval)
	}
	if s.cfg.Noise {
		s.root.DirichletNoise(s.cfg.NoiseEps, s.cfg.NoiseAlpha, s.dirichlet)
	}
	s.printf("NN eval=%f\n", rootEval)

	s.running.Store(true)
	var wg sync.WaitGroup
	for i := 1; i < s.cfg.NumThreads; i++ {
		wg.Add(1)
		go s.worker(&wg)
	}

	lastUpdate := start
	for {
		state := s.rootState.Duplicate()
		if result := s.PlaySimulation(state, s.root); result.Valid() {
			s.incrementPlayouts()
		}

		if time.Since(lastUpdate) >= analysisInterval {
			lastUpdate = time.Now()
			s.dumpAnalysis(s.playouts.Load())
		}
		if !s.running.Load() || s.playoutLimitReached() {
			break
		}
	}

	s.running.Store(false)
	wg.Wait()

	if !s.root.HasChildren() {
		return game.MoveNone
	}

	s.printf("\n")
	s.dumpStats(s.rootState, s.root)
	if s.recorder != nil {
		s.recorder(s.rootState, s.root)
	}

	if centis := int64(time.Since(start) / (10 * time.Millisecond)); centis > 0 {
		playouts := int64(s.playouts.Load())
		s.printf("%d visits, %d nodes, %d playouts, %d n/s\n\n",
			s.root.Visits(), s.nodes.Load(), playouts, playouts*100/(centis+1))
	}

	return s.BestMove()
}

// Ponder searches until input is pending or Stop is called. The playout cap
// does not end a ponder.
func (s *Search) Ponder() {
	if s.playouts.Load() != 0 || s.nodes.Load() != 0 {
		panic("mcts: Ponder on an already used search")
	}
	// the helper workers stop at the playout cap, so lift it
	s.SetPlayoutLimit(0)

	var rootEval float32
	if s.root.CreateChildren(&s.nodes, s.rootState, s.nn, &rootEval) {
		s.root.Update(rootEval)
	}
	s.printf("NN eval=%f\n", rootEval)

	s.running.Store(true)
	var wg sync.WaitGroup
	for i := 1; i < s.cfg.NumThreads; i++ {
		wg.Add(1)
		go s.worker(&wg)
	}

	for {
		state := s.rootState.Duplicate()
		if result := s.PlaySimulation(state, s.root); result.Valid() {
			s.incrementPlayouts()
		}
		if s.inputIsPending() || !s.running.Load() {
			break
		}
	}

	s.running.Store(false)
	wg.Wait()

	s.printf("\n")
	s.dumpStats(s.rootState, s.root)
	s.printf("\n%d visits, %d nodes\n\n", s.root.Visits(), s.nodes.Load())
}

func (s *Search) inputIsPending() bool {
	return s.inputPending != nil && s.inputPending()
}

// BestMove picks the move to play from the root statistics: argmax by
// visits, proportional sampling in the early game, and the resignation gate.
// MoveNone doubles as the resign signal; callers disambiguate by whether the
// root had children.
func (s *Search) BestMove() game.Move {
	color := s.rootState.SideToMove()

	s.root.SortRootChildren(color)
	if s.rootState.GamePly() < s.cfg.RandomCount {
		s.root.RandomizeFirstProportionally(s.rand)
	}

	best := s.root.FirstChild()
	bestMove := best.Move()

	// no statistics yet, nothing to judge a resignation by
	if best.FirstVisit() {
		return bestMove
	}

	bestScore := best.Eval(color)
	visits := s.root.Visits()

	if bestScore < float32(s.cfg.ResignPct)/100 &&
		visits > 500 &&
		s.rootState.GamePly() > s.cfg.MinResignMoves {
		s.printf("Score looks bad. Resigning.\n")
		bestMove = game.MoveNone
	}
	return bestMove
}
