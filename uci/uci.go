// Package uci is the text front-end of the engine: a small command loop in
// the shape of the universal chess interface, driving searches over a
// channel pair so the surrounding process owns stdin/stdout.
package uci

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/mcts"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger configured for console output on
// stderr, for engine diagnostics that must not pollute the protocol stream.
func NewLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// Command handles one protocol command.
type Command interface {
	Do(args []string, e *Engine) (string, error)
}

type cmdFunc func(e *Engine, args []string) (string, error)

func (f cmdFunc) Do(args []string, e *Engine) (string, error) { return f(e, args) }

// Engine is the protocol state machine. Search output (analysis, stats)
// goes straight to the configured writer; command replies go through the
// output channel.
type Engine struct {
	pos     game.Position
	newGame func() game.Position

	nn   mcts.Inferencer
	tt   *mcts.TTable
	conf mcts.Config

	search *mcts.Search

	known map[string]Command
	ch    chan string
	ret   chan string

	out           io.Writer
	log           zerolog.Logger
	name, version string
}

// New builds an engine. newGame produces a fresh starting position; out
// receives the search's human-readable output.
func New(newGame func() game.Position, nn mcts.Inferencer, conf mcts.Config, out io.Writer, name, version string) *Engine {
	return &Engine{
		pos:     newGame(),
		newGame: newGame,
		nn:      nn,
		tt:      mcts.NewTTable(mcts.DefaultTTSize),
		conf:    conf,
		known:   StandardLib(),
		out:     out,
		log:     NewLogger(),
		name:    name,
		version: version,
	}
}

// Start launches the command loop. Feed protocol lines into the input
// channel; replies come out of the output channel. Closing input shuts the
// engine down and closes output.
func (e *Engine) Start() (input, output chan string) {
	e.ch = make(chan string, 16)
	e.ret = make(chan string)
	go e.loop()
	return e.ch, e.ret
}

// Position returns the current position.
func (e *Engine) Position() game.Position { return e.pos }

func (e *Engine) loop() {
	defer close(e.ret)
	for line := range e.ch {
		cmd, args, err := e.parse(line)
		if cmd == nil && err == nil {
			continue
		}
		if err != nil {
			e.log.Error().Err(err).Str("line", line).Msg("bad command")
			e.ret <- fmt.Sprintf("info string error %v", err)
			continue
		}
		result, err := cmd.Do(args, e)
		if err != nil {
			e.log.Error().Err(err).Str("line", line).Msg("command failed")
			e.ret <- fmt.Sprintf("info string error %v", err)
			continue
		}
		if result != "" {
			e.ret <- result
		}
	}
}

func (e *Engine) parse(line string) (Command, []string, error) {
	tokens := strings.Fields(strings.TrimSpace(line))
	if len(tokens) == 0 {
		return nil, nil, nil
	}
	cmd, ok := e.known[tokens[0]]
	if !ok {
		return nil, nil, errors.Errorf("unknown command %q", tokens[0])
	}
	return cmd, tokens[1:], nil
}

// inputPending reports whether another command line is already queued; it is
// the stop signal a pondering search polls.
func (e *Engine) inputPending() bool { return len(e.ch) > 0 }

func (e *Engine) newSearch() *mcts.Search {
	s := mcts.NewSearch(e.pos.Duplicate(), e.nn, e.tt, e.conf)
	s.SetOutput(e.out)
	s.SetInputPending(e.inputPending)
	e.search = s
	return s
}

func uciCmd(e *Engine, args []string) (string, error) {
	return fmt.Sprintf("id name %s %s\nid author the %s authors\nuciok", e.name, e.version, e.name), nil
}

func isReady(e *Engine, args []string) (string, error) { return "readyok", nil }

func newGameCmd(e *Engine, args []string) (string, error) {
	e.pos = e.newGame()
	e.tt = mcts.NewTTable(mcts.DefaultTTSize)
	return "", nil
}

func position(e *Engine, args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("not enough arguments for \"position\"")
	}
	if args[0] != "startpos" {
		return "", errors.Errorf("unsupported position kind %q", args[0])
	}
	pos := e.newGame()
	rest := args[1:]
	if len(rest) > 0 {
		if rest[0] != "moves" {
			return "", errors.Errorf("expected \"moves\", got %q", rest[0])
		}
		for _, ms := range rest[1:] {
			m, err := game.ParseMove(ms)
			if err != nil {
				return "", err
			}
			if !isLegal(pos, m) {
				return "", errors.Errorf("illegal move %q", ms)
			}
			pos.Do(m)
		}
	}
	e.pos = pos
	return "", nil
}

func isLegal(pos game.Position, m game.Move) bool {
	for _, legal := range pos.LegalMoves() {
		if legal == m {
			return true
		}
	}
	return false
}

func goCmd(e *Engine, args []string) (string, error) {
	s := e.newSearch()
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "nodes":
			if i+1 >= len(args) {
				return "", errors.New("\"go nodes\" needs a count")
			}
			n, err := strconv.ParseInt(args[i+1], 10, 32)
			if err != nil {
				return "", errors.WithMessage(err, "unable to parse node count")
			}
			s.SetPlayoutLimit(int32(n))
			i++
		case "infinite":
			e.log.Info().Msg("pondering until stop")
			go func() {
				s.Ponder()
			}()
			return "", nil
		default:
			return "", errors.Errorf("unsupported go parameter %q", args[i])
		}
	}
	move := s.Think()
	if move == game.MoveNone {
		return "bestmove (none)", nil
	}
	return "bestmove " + move.String(), nil
}

func stop(e *Engine, args []string) (string, error) {
	if e.search != nil {
		e.search.Stop()
	}
	return "", nil
}

func dump(e *Engine, args []string) (string, error) {
	return fmt.Sprintf("\n%v", e.pos), nil
}

func quit(e *Engine, args []string) (string, error) {
	if e.search != nil {
		e.search.Stop()
	}
	close(e.ch)
	return "", nil
}

// StandardLib is the default command set.
func StandardLib() map[string]Command {
	return map[string]Command{
		"uci":        cmdFunc(uciCmd),
		"isready":    cmdFunc(isReady),
		"ucinewgame": cmdFunc(newGameCmd),
		"position":   cmdFunc(position),
		"go":         cmdFunc(goCmd),
		"stop":       cmdFunc(stop),
		"d":          cmdFunc(dump),
		"quit":       cmdFunc(quit),
	}
}
