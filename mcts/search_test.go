package mcts

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/game/minichess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, fen string) game.Position {
	t.Helper()
	pos, err := minichess.Parse(fen)
	require.NoError(t, err)
	return pos
}

func move(t *testing.T, s string) game.Move {
	t.Helper()
	m, err := game.ParseMove(s)
	require.NoError(t, err)
	return m
}

func assertNoVirtualLoss(t *testing.T, n *Node) {
	t.Helper()
	assert.Zero(t, n.VirtualLosses(), "virtual loss must balance after workers join")
	if !n.HasChildren() {
		return
	}
	for _, child := range n.Children() {
		assertNoVirtualLoss(t, child)
	}
}

func TestThinkSingleThreadedPlayoutCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 100

	var buf bytes.Buffer
	s := NewSearch(minichess.New(), uniformNN{value: 0.5}, NewTTable(1024), cfg)
	s.SetOutput(&buf)
	s.SetSeed(1)

	best := s.Think()

	assert.Equal(t, int32(100), s.Playouts())
	assert.Equal(t, int32(101), s.Root().Visits(), "visit conservation: playouts plus the root expansion")
	assert.GreaterOrEqual(t, s.Nodes(), int32(100))
	assert.LessOrEqual(t, s.Nodes(), int32(101))
	assert.NotEqual(t, game.MoveNone, best)

	out := buf.String()
	assert.Contains(t, out, "NN eval=0.5")
	assert.Contains(t, out, "->", "per-child stats must be dumped")

	s.dumpAnalysis(s.Playouts())
	assert.Contains(t, buf.String(), "Playouts: 100, Win:")
}

func TestThinkMultiThreadedInvariants(t *testing.T) {
	// pawn-only root: every move is irreversible, so no position inside the
	// tree can alias the root's hash and disturb its visit count
	pos := parse(t, "4/pp2/PP2/4 w")

	cfg := DefaultConfig()
	cfg.NumThreads = 8
	cfg.MaxPlayouts = 10000
	cfg.Quiet = true

	s := NewSearch(pos, uniformNN{value: 0.5}, NewTTable(4096), cfg)
	s.SetSeed(2)
	s.Think()

	playouts := s.Playouts()
	assert.Equal(t, playouts+1, s.Root().Visits(), "visit conservation under concurrency")
	assert.LessOrEqual(t, playouts, int32(10000+cfg.NumThreads), "overshoot is bounded by in-flight simulations")
	assert.LessOrEqual(t, s.Nodes(), playouts+1)
	assert.LessOrEqual(t, s.Nodes(), cfg.MaxTreeSize)
	assertNoVirtualLoss(t, s.Root())
}

func TestThinkFindsMateInOne(t *testing.T) {
	pos := parse(t, "3k/1K2/4/R3 w")

	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 1000

	var buf bytes.Buffer
	s := NewSearch(pos, uniformNN{value: 0.5}, NewTTable(4096), cfg)
	s.SetOutput(&buf)
	s.SetSeed(3)

	best := s.Think()
	assert.Equal(t, move(t, "a1d1"), best)

	var mateVisits, total int32
	for _, child := range s.Root().Children() {
		total += child.Visits()
		if child.Move() == best {
			mateVisits = child.Visits()
		}
	}
	assert.Greater(t, float64(mateVisits)/float64(total), 0.5, "the mating move dominates the visits")
	assert.Contains(t, buf.String(), "a1d1 ->")
}

func TestTerminalScoring(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want float32
	}{
		{"black is mated", "3k/1K2/4/3R b", 1.0},
		{"white is mated", "3K/1k2/4/3r w", 0.0},
		{"stalemate", "4/1K2/1R2/k3 b", 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := parse(t, tc.fen)
			cfg := DefaultConfig()
			cfg.Quiet = true

			// the evaluator's opinion must not matter at a terminal leaf
			s := NewSearch(pos, uniformNN{value: 1.0}, NewTTable(16), cfg)
			result := s.PlaySimulation(pos.Duplicate(), s.Root())
			require.True(t, result.Valid())
			assert.Equal(t, tc.want, result.Eval())
		})
	}
}

func TestDrawScoringOverridesEvaluator(t *testing.T) {
	pos := minichess.New()
	shuffle := []string{"b1c1", "c4b4", "c1b1", "b4c4"}
	for cycle := 0; cycle < 4; cycle++ {
		for _, s := range shuffle {
			pos.Do(move(t, s))
		}
	}
	require.True(t, pos.IsDraw())

	cfg := DefaultConfig()
	cfg.Quiet = true
	s := NewSearch(pos, uniformNN{value: 1.0}, NewTTable(16), cfg)

	result := s.PlaySimulation(pos.Duplicate(), s.Root())
	require.True(t, result.Valid())
	assert.Equal(t, float32(0.5), result.Eval())
}

func TestThinkWithNoLegalMovesReturnsNone(t *testing.T) {
	pos := parse(t, "3k/1K2/4/3R b")

	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 10
	cfg.Quiet = true

	s := NewSearch(pos, uniformNN{value: 0.5}, NewTTable(16), cfg)
	assert.Equal(t, game.MoveNone, s.Think())
	assert.False(t, s.Root().HasChildren())
}

func TestThinkTwicePanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 5
	cfg.Quiet = true

	s := NewSearch(minichess.New(), uniformNN{value: 0.5}, NewTTable(16), cfg)
	s.Think()
	assert.Panics(t, func() { s.Think() })
}

func TestResignationGate(t *testing.T) {
	pos := parse(t, "3k/1K2/4/R3 w")

	cfg := DefaultConfig()
	cfg.ResignPct = 10
	cfg.MinResignMoves = -1

	var buf bytes.Buffer
	s := NewSearch(pos, uniformNN{value: 0.5}, NewTTable(16), cfg)
	s.SetOutput(&buf)

	var eval float32
	require.True(t, s.Root().CreateChildren(&s.nodes, pos, s.nn, &eval))

	// the best child looks completely lost
	first := s.Root().Children()[0]
	first.SetStats(400, 0)

	s.Root().SetStats(501, 0)
	assert.Equal(t, game.MoveNone, s.BestMove())
	assert.Contains(t, buf.String(), "Score looks bad. Resigning.")

	s.Root().SetStats(500, 0)
	assert.Equal(t, first.Move(), s.BestMove(), "not visited enough to resign")
}

func TestProportionalSamplingEarlyGame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RandomCount = 100
	cfg.Quiet = true

	pos := minichess.New()
	s := NewSearch(pos, uniformNN{value: 0.5}, NewTTable(16), cfg)
	s.SetSeed(7)

	var eval float32
	require.True(t, s.Root().CreateChildren(&s.nodes, pos, s.nn, &eval))
	children := s.Root().Children()
	require.GreaterOrEqual(t, len(children), 3)

	visits := []int32{10, 30, 60}
	moves := make([]game.Move, 3)
	for i, v := range visits {
		children[i].SetStats(v, float64(v)*0.6)
		moves[i] = children[i].Move()
	}

	const trials = 3000
	counts := make(map[game.Move]int)
	for i := 0; i < trials; i++ {
		counts[s.BestMove()]++
	}

	for i, m := range moves {
		got := float64(counts[m]) / trials
		want := float64(visits[i]) / 100
		assert.InDelta(t, want, got, 0.05, "move %v", m)
	}
}

func TestPonderStopsOnExternalCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumThreads = 2

	var buf bytes.Buffer
	s := NewSearch(minichess.New(), uniformNN{value: 0.5}, NewTTable(1024), cfg)
	s.SetOutput(&buf)
	s.SetSeed(5)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Ponder()
	}()

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ponder did not stop")
	}

	assert.False(t, s.IsRunning())
	assert.Greater(t, s.Playouts(), int32(0))
	assertNoVirtualLoss(t, s.Root())
	assert.True(t, strings.Contains(buf.String(), "visits"), "final stats must be dumped")
}

func TestPonderStopsOnPendingInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.Quiet = true

	s := NewSearch(minichess.New(), uniformNN{value: 0.5}, NewTTable(1024), cfg)
	s.SetInputPending(func() bool { return true })

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Ponder()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ponder did not notice pending input")
	}
	assertNoVirtualLoss(t, s.Root())
}

func TestTranspositionTableCarriesStatsAcrossSearches(t *testing.T) {
	tt := NewTTable(4096)

	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 300
	cfg.Quiet = true

	s1 := NewSearch(minichess.New(), uniformNN{value: 0.5}, tt, cfg)
	s1.SetSeed(11)
	s1.Think()
	require.Greater(t, s1.Root().Visits(), int32(300))

	// a fresh search over the same position adopts the canonical stats on
	// its very first simulation
	s2 := NewSearch(minichess.New(), uniformNN{value: 0.5}, tt, cfg)
	result := s2.PlaySimulation(minichess.New(), s2.Root())
	require.True(t, result.Valid())
	assert.Greater(t, s2.Root().Visits(), int32(300))
}

func TestToDot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxPlayouts = 20
	cfg.Quiet = true

	s := NewSearch(minichess.New(), uniformNN{value: 0.5}, NewTTable(64), cfg)
	s.Think()

	dot := s.ToDot()
	assert.Contains(t, dot, "digraph G")
	assert.Contains(t, dot, "visits")
}
