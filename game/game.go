package game

import (
	"fmt"

	"github.com/pkg/errors"
)

// Color is the side to move.
type Color int8

const (
	White Color = iota
	Black
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Format(s fmt.State, verb rune) {
	switch c {
	case White:
		fmt.Fprint(s, "white")
	case Black:
		fmt.Fprint(s, "black")
	default:
		fmt.Fprint(s, "UNKNOWN COLOR")
	}
}

// Move is a packed from/to move on a universal 0..63 square grid.
//
//	bits 0..5   destination square
//	bits 6..11  origin square
//	bit  12     promotion flag
//
// Squares are indexed file + rank*8, so the same encoding serves any board
// that fits inside the 8x8 grid. The zero value MoveNone is the reserved
// "no move" sentinel; the search controller also returns it to signal
// resignation (callers disambiguate by whether the root had children).
type Move uint16

const MoveNone Move = 0

const promoBit Move = 1 << 12

// NumSquares is the size of the universal square grid Move is encoded on.
const NumSquares = 64

// IndexSpace is the width of the from x to policy plane a Move indexes into.
const IndexSpace = NumSquares * NumSquares

func MakeMove(from, to int) Move {
	return Move(from<<6 | to)
}

func MakePromotion(from, to int) Move {
	return MakeMove(from, to) | promoBit
}

func (m Move) From() int         { return int(m>>6) & 0x3f }
func (m Move) To() int           { return int(m) & 0x3f }
func (m Move) IsPromotion() bool { return m&promoBit != 0 }

// Index maps the move onto the flat from x to policy vector emitted by the
// neural network.
func (m Move) Index() int { return m.From()*NumSquares + m.To() }

func squareString(sq int) string {
	return string([]byte{byte('a' + sq%8), byte('1' + sq/8)})
}

func (m Move) String() string {
	if m == MoveNone {
		return "none"
	}
	s := squareString(m.From()) + squareString(m.To())
	if m.IsPromotion() {
		s += "r"
	}
	return s
}

// ParseMove parses coordinate notation ("a2a3", "a3a4r") back into a Move.
func ParseMove(s string) (Move, error) {
	if s == "none" {
		return MoveNone, nil
	}
	if len(s) != 4 && len(s) != 5 {
		return MoveNone, errors.Errorf("cannot parse move %q", s)
	}
	sq := func(file, rank byte) (int, error) {
		if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
			return 0, errors.Errorf("cannot parse square %q in move %q", string([]byte{file, rank}), s)
		}
		return int(file-'a') + int(rank-'1')*8, nil
	}
	from, err := sq(s[0], s[1])
	if err != nil {
		return MoveNone, err
	}
	to, err := sq(s[2], s[3])
	if err != nil {
		return MoveNone, err
	}
	m := MakeMove(from, to)
	if len(s) == 5 {
		if s[4] != 'r' {
			return MoveNone, errors.Errorf("unknown promotion piece %q in move %q", s[4], s)
		}
		m |= promoBit
	}
	return m, nil
}

// StateInfo is the undo record returned by Position.Do. It captures whatever
// the position needs to restore itself exactly; callers treat it as opaque
// and scope it to one recursion frame.
type StateInfo struct {
	Captured int8
	PrevKey  uint64
	PrevRule uint16
}

// Position is the game-state contract the search core runs against. A
// Position is a mutable value; the search duplicates it per simulation and
// applies/undoes moves during a descent.
type Position interface {
	// SideToMove returns the color whose turn it is.
	SideToMove() Color
	// Key is a zobrist-style hash of the position, side to move included.
	Key() uint64
	// GamePly is the number of half-moves played from the initial position.
	GamePly() int
	// IsDraw reports whether the position is drawn by rule (repetition,
	// quiet-move counter, bare kings). Checkmate and stalemate are detected
	// by the caller via LegalMoves and InCheck.
	IsDraw() bool
	// InCheck reports whether the side to move is in check.
	InCheck() bool
	// LegalMoves generates all strictly legal moves.
	LegalMoves() []Move
	// Do applies a legal move and returns the record Undo needs.
	Do(m Move) StateInfo
	// Undo reverts the most recent Do of m.
	Undo(m Move, st StateInfo)
	// Duplicate returns an independently mutable copy with the same key and
	// legal-move semantics.
	Duplicate() Position

	// BoardSize returns the board height and width.
	BoardSize() (int, int)
	// ActionSpace is the width of the policy vector the evaluator emits.
	ActionSpace() int
	// Planes appends the feature-plane encoding of the position to dst.
	// The encoding is from White's point of view; perspective flipping is
	// the encoder's job.
	Planes(dst []float32) []float32
}
