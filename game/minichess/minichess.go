// Package minichess implements a 4x4 chess variant with kings, rooks and
// pawns. It is small enough to search exhaustively in tests yet keeps the
// full chess-like vocabulary the engine core needs: check, checkmate,
// stalemate, repetition draws and zobrist keys.
package minichess

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/liujh168/leela-chess/game"
	"github.com/pkg/errors"
)

const (
	// Files is the board width, Ranks the board height.
	Files = 4
	Ranks = 4
)

// Piece codes. Positive is white, negative is black.
const (
	empty int8 = 0
	wKing int8 = 1
	wRook int8 = 2
	wPawn int8 = 3
	bKing int8 = -1
	bRook int8 = -2
	bPawn int8 = -3
)

// rule50Limit is the quiet half-move count after which the game is drawn.
// 20 full quiet moves is plenty on a 4x4 board.
const rule50Limit = 40

var pieceRunes = map[int8]rune{
	wKing: 'K', wRook: 'R', wPawn: 'P',
	bKing: 'k', bRook: 'r', bPawn: 'p',
}

var runePieces = map[rune]int8{
	'K': wKing, 'R': wRook, 'P': wPawn,
	'k': bKing, 'r': bRook, 'p': bPawn,
}

// zobrist tables, one entry per square per piece kind, plus a side key.
// Grounded in the same shape the big-board games use; fixed seed so keys are
// stable within and across processes.
var (
	zobTable [Files * Ranks][6]uint64
	zobSide  uint64
)

func init() {
	r := rand.New(rand.NewSource(0x6c656c61))
	for sq := range zobTable {
		for p := range zobTable[sq] {
			zobTable[sq][p] = r.Uint64()
		}
	}
	zobSide = r.Uint64()
}

func pieceIndex(p int8) int {
	if p > 0 {
		return int(p) - 1
	}
	return int(-p) + 2
}

func colorOf(p int8) game.Color {
	if p > 0 {
		return game.White
	}
	return game.Black
}

// Position is a minichess game state. It implements game.Position.
type Position struct {
	board [Files * Ranks]int8
	stm   game.Color
	key   uint64
	ply   int
	rule  uint16
	// keys of every position seen since the start, current included.
	history []uint64
}

var _ game.Position = &Position{}

// New returns the starting position: white Ka1 Rb1 Pa2 Pb2 against the
// mirrored black setup Kd4 Rc4 Pd3 Pc3, white to move.
func New() *Position {
	p := &Position{}
	p.put(sq("a1"), wKing)
	p.put(sq("b1"), wRook)
	p.put(sq("a2"), wPawn)
	p.put(sq("b2"), wPawn)
	p.put(sq("d4"), bKing)
	p.put(sq("c4"), bRook)
	p.put(sq("d3"), bPawn)
	p.put(sq("c3"), bPawn)
	p.history = append(p.history, p.key)
	return p
}

// Parse reads a FEN-like description: ranks 4 down to 1 separated by
// slashes, digits for runs of empty squares, then the side to move.
//
//	Parse("2rk/2pp/PP2/KR2 w")
func Parse(s string) (*Position, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, errors.Errorf("cannot parse position %q: want <board> <side>", s)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != Ranks {
		return nil, errors.Errorf("cannot parse position %q: want %d ranks", s, Ranks)
	}
	p := &Position{}
	for i, row := range rows {
		rank := Ranks - 1 - i
		file := 0
		for _, c := range row {
			switch {
			case c >= '1' && c <= '4':
				file += int(c - '0')
			default:
				piece, ok := runePieces[c]
				if !ok {
					return nil, errors.Errorf("unknown piece %q in position %q", c, s)
				}
				if file >= Files {
					return nil, errors.Errorf("rank overflow in position %q", s)
				}
				p.put(rank*Files+file, piece)
				file++
			}
		}
		if file != Files {
			return nil, errors.Errorf("rank %d of position %q has %d files", rank+1, s, file)
		}
	}
	switch fields[1] {
	case "w":
	case "b":
		p.stm = game.Black
		p.key ^= zobSide
	default:
		return nil, errors.Errorf("unknown side to move %q in position %q", fields[1], s)
	}
	p.history = append(p.history, p.key)
	return p, nil
}

func (p *Position) put(b int, piece int8) {
	p.board[b] = piece
	p.key ^= zobTable[b][pieceIndex(piece)]
}

// sq converts "a1" style coordinates to a board index.
func sq(s string) int {
	return int(s[1]-'1')*Files + int(s[0]-'a')
}

// boardIndex converts a universal 0..63 move square to a board index.
func boardIndex(sq64 int) int {
	return (sq64/8)*Files + sq64%8
}

// moveSquare converts a board index to the universal 0..63 grid.
func moveSquare(b int) int {
	return (b/Files)*8 + b%Files
}

func (p *Position) SideToMove() game.Color { return p.stm }
func (p *Position) Key() uint64            { return p.key }
func (p *Position) GamePly() int           { return p.ply }

func (p *Position) BoardSize() (int, int) { return Ranks, Files }

func (p *Position) ActionSpace() int { return game.IndexSpace }

// IsDraw reports threefold repetition, the quiet-move rule, and bare kings.
func (p *Position) IsDraw() bool {
	if p.rule >= rule50Limit {
		return true
	}
	count := 0
	for _, k := range p.history {
		if k == p.key {
			count++
		}
	}
	if count >= 3 {
		return true
	}
	for _, piece := range p.board {
		if piece != empty && piece != wKing && piece != bKing {
			return false
		}
	}
	return true
}

func (p *Position) kingSquare(c game.Color) int {
	king := wKing
	if c == game.Black {
		king = bKing
	}
	for b, piece := range p.board {
		if piece == king {
			return b
		}
	}
	return -1
}

var kingDeltas = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

var rookDirs = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// attacked reports whether square b is attacked by any piece of color by.
func (p *Position) attacked(b int, by game.Color) bool {
	f, r := b%Files, b/Files
	sign := int8(1)
	if by == game.Black {
		sign = -1
	}
	for _, d := range kingDeltas {
		nf, nr := f+d[0], r+d[1]
		if nf < 0 || nf >= Files || nr < 0 || nr >= Ranks {
			continue
		}
		if p.board[nr*Files+nf] == sign*wKing {
			return true
		}
	}
	for _, d := range rookDirs {
		nf, nr := f+d[0], r+d[1]
		for nf >= 0 && nf < Files && nr >= 0 && nr < Ranks {
			piece := p.board[nr*Files+nf]
			if piece != empty {
				if piece == sign*wRook {
					return true
				}
				break
			}
			nf += d[0]
			nr += d[1]
		}
	}
	// a pawn of color `by` attacks b from one rank behind b, relative to its
	// own direction of travel
	pr := r - 1
	if by == game.Black {
		pr = r + 1
	}
	if pr >= 0 && pr < Ranks {
		for _, df := range [2]int{-1, 1} {
			nf := f + df
			if nf >= 0 && nf < Files && p.board[pr*Files+nf] == sign*wPawn {
				return true
			}
		}
	}
	return false
}

func (p *Position) InCheck() bool {
	k := p.kingSquare(p.stm)
	if k < 0 {
		return false
	}
	return p.attacked(k, p.stm.Opponent())
}

// pseudoMoves generates moves in a fixed square/direction order so that
// expansion sees children in a deterministic order.
func (p *Position) pseudoMoves() []game.Move {
	moves := make([]game.Move, 0, 16)
	sign := int8(1)
	if p.stm == game.Black {
		sign = -1
	}
	for b, piece := range p.board {
		if piece == empty || colorOf(piece) != p.stm {
			continue
		}
		f, r := b%Files, b/Files
		from := moveSquare(b)
		switch sign * piece {
		case wKing:
			for _, d := range kingDeltas {
				nf, nr := f+d[0], r+d[1]
				if nf < 0 || nf >= Files || nr < 0 || nr >= Ranks {
					continue
				}
				target := p.board[nr*Files+nf]
				if target == empty || colorOf(target) != p.stm {
					moves = append(moves, game.MakeMove(from, moveSquare(nr*Files+nf)))
				}
			}
		case wRook:
			for _, d := range rookDirs {
				nf, nr := f+d[0], r+d[1]
				for nf >= 0 && nf < Files && nr >= 0 && nr < Ranks {
					target := p.board[nr*Files+nf]
					if target == empty {
						moves = append(moves, game.MakeMove(from, moveSquare(nr*Files+nf)))
					} else {
						if colorOf(target) != p.stm {
							moves = append(moves, game.MakeMove(from, moveSquare(nr*Files+nf)))
						}
						break
					}
					nf += d[0]
					nr += d[1]
				}
			}
		case wPawn:
			dr := 1
			lastRank := Ranks - 1
			if p.stm == game.Black {
				dr = -1
				lastRank = 0
			}
			nr := r + dr
			if nr >= 0 && nr < Ranks {
				push := nr*Files + f
				if p.board[push] == empty {
					moves = append(moves, pawnMove(from, moveSquare(push), nr == lastRank))
				}
				for _, df := range [2]int{-1, 1} {
					nf := f + df
					if nf < 0 || nf >= Files {
						continue
					}
					target := p.board[nr*Files+nf]
					if target != empty && colorOf(target) != p.stm {
						moves = append(moves, pawnMove(from, moveSquare(nr*Files+nf), nr == lastRank))
					}
				}
			}
		}
	}
	return moves
}

func pawnMove(from, to int, promotes bool) game.Move {
	if promotes {
		return game.MakePromotion(from, to)
	}
	return game.MakeMove(from, to)
}

// LegalMoves filters pseudo moves by make/unmake plus a king-attack test.
func (p *Position) LegalMoves() []game.Move {
	pseudo := p.pseudoMoves()
	moves := pseudo[:0]
	mover := p.stm
	for _, m := range pseudo {
		st := p.Do(m)
		k := p.kingSquare(mover)
		if k < 0 || !p.attacked(k, mover.Opponent()) {
			moves = append(moves, m)
		}
		p.Undo(m, st)
	}
	return moves
}

func (p *Position) Do(m game.Move) game.StateInfo {
	from := boardIndex(m.From())
	to := boardIndex(m.To())
	piece := p.board[from]
	captured := p.board[to]

	st := game.StateInfo{Captured: captured, PrevKey: p.key, PrevRule: p.rule}

	p.key ^= zobTable[from][pieceIndex(piece)]
	if captured != empty {
		p.key ^= zobTable[to][pieceIndex(captured)]
	}
	placed := piece
	if m.IsPromotion() {
		placed = wRook
		if piece < 0 {
			placed = bRook
		}
	}
	p.key ^= zobTable[to][pieceIndex(placed)]
	p.key ^= zobSide

	p.board[from] = empty
	p.board[to] = placed

	if captured != empty || piece == wPawn || piece == bPawn {
		p.rule = 0
	} else {
		p.rule++
	}
	p.ply++
	p.stm = p.stm.Opponent()
	p.history = append(p.history, p.key)
	return st
}

func (p *Position) Undo(m game.Move, st game.StateInfo) {
	from := boardIndex(m.From())
	to := boardIndex(m.To())
	piece := p.board[to]
	if m.IsPromotion() {
		piece = wPawn
		if p.board[to] < 0 {
			piece = bPawn
		}
	}
	p.board[from] = piece
	p.board[to] = st.Captured
	p.key = st.PrevKey
	p.rule = st.PrevRule
	p.ply--
	p.stm = p.stm.Opponent()
	p.history = p.history[:len(p.history)-1]
}

func (p *Position) Duplicate() game.Position {
	d := *p
	d.history = make([]uint64, len(p.history), len(p.history)+16)
	copy(d.history, p.history)
	return &d
}

// Planes encodes the board as four 4x4 feature planes: kings, rooks and
// pawns as +1 white / -1 black, plus a side-to-move plane.
func (p *Position) Planes(dst []float32) []float32 {
	base := len(dst)
	dst = append(dst, make([]float32, 4*Files*Ranks)...)
	for b, piece := range p.board {
		if piece == empty {
			continue
		}
		plane := int(piece) - 1
		v := float32(1)
		if piece < 0 {
			plane = int(-piece) - 1
			v = -1
		}
		dst[base+plane*Files*Ranks+b] = v
	}
	stm := float32(1)
	if p.stm == game.Black {
		stm = -1
	}
	for i := 0; i < Files*Ranks; i++ {
		dst[base+3*Files*Ranks+i] = stm
	}
	return dst
}

func (p *Position) String() string {
	var b strings.Builder
	for r := Ranks - 1; r >= 0; r-- {
		fmt.Fprint(&b, "⎢ ")
		for f := 0; f < Files; f++ {
			piece := p.board[r*Files+f]
			if piece == empty {
				b.WriteString("· ")
			} else {
				b.WriteRune(pieceRunes[piece])
				b.WriteByte(' ')
			}
		}
		fmt.Fprint(&b, "⎥\n")
	}
	return b.String()
}
