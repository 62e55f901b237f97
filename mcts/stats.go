package mcts

import (
	"fmt"
	"time"

	"github.com/liujh168/leela-chess/game"
)

// analysisInterval is the minimum wall-clock gap between periodic analysis
// lines while the search runs.
const analysisInterval = 2500 * time.Millisecond

func (s *Search) printf(format string, args ...interface{}) {
	if s.cfg.Quiet {
		return
	}
	fmt.Fprintf(s.out, format, args...)
}

// pv renders the principal variation below parent by repeatedly following
// the most visited child, applying and undoing each move on pos.
func (s *Search) pv(pos game.Position, parent *Node) string {
	if !parent.HasChildren() {
		return ""
	}
	best := parent.BestRootChild(pos.SideToMove())
	m := best.Move()
	res := m.String()

	st := pos.Do(m)
	if next := s.pv(pos, best); next != "" {
		res += " " + next
	}
	pos.Undo(m, st)
	return res
}

// dumpAnalysis emits the periodic "Playouts:" line. Workers are running, so
// the PV is walked on a duplicate of the root state.
func (s *Search) dumpAnalysis(playouts int32) {
	if s.cfg.Quiet {
		return
	}
	state := s.rootState.Duplicate()
	color := state.SideToMove()

	pvstring := s.pv(state, s.root)
	winrate := 100 * s.root.Eval(color)
	s.printf("Playouts: %d, Win: %5.2f%%, PV: %s\n", playouts, winrate, pvstring)
}

// dumpStats prints the per-child summary after a search. It walks the PV on
// the live state, so it must only run once the workers have joined.
func (s *Search) dumpStats(state game.Position, parent *Node) {
	if s.cfg.Quiet || !parent.HasChildren() {
		return
	}
	color := state.SideToMove()

	// best move on top
	s.root.SortRootChildren(color)

	if parent.FirstChild().FirstVisit() {
		return
	}

	movecount := 0
	for _, node := range parent.Children() {
		movecount++
		if movecount > 2 && node.Visits() == 0 {
			break
		}

		mv := node.Move().String()
		var winrate float32
		if node.Visits() > 0 {
			winrate = node.Eval(color) * 100
		}

		pvstring := mv
		st := state.Do(node.Move())
		if next := s.pv(state, node); next != "" {
			pvstring += " " + next
		}
		state.Undo(node.Move(), st)

		s.printf("%4s -> %7d (V: %5.2f%%) (N: %5.2f%%) PV: %s\n",
			mv, node.Visits(), winrate, node.Prior()*100, pvstring)
	}
}
