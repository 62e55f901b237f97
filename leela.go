// Package leela ties the pieces of the engine together: the dual network as
// the evaluator behind the search, a transposition table shared across
// moves, and a self-play loop that records training examples.
package leela

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/liujh168/leela-chess/dualnet"
	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/mcts"
	"github.com/liujh168/leela-chess/training"
	"github.com/pkg/errors"
)

// Agent owns a trained network and everything needed to search with it. It
// implements mcts.Inferencer by running positions through a pool of
// predictors, one per CPU, so concurrent workers don't serialize on a single
// virtual machine.
type Agent struct {
	NN   *dualnet.Network
	TT   *mcts.TTable
	Conf mcts.Config

	predictors chan *dualnet.Predictor
	all        []*dualnet.Predictor
}

var _ mcts.Inferencer = &Agent{}

// NewAgent builds an agent around a trained network.
func NewAgent(net *dualnet.Network, conf mcts.Config) (*Agent, error) {
	a := &Agent{
		NN:         net,
		TT:         mcts.NewTTable(mcts.DefaultTTSize),
		Conf:       conf,
		predictors: make(chan *dualnet.Predictor, runtime.NumCPU()),
	}
	for i := 0; i < runtime.NumCPU(); i++ {
		p, err := dualnet.NewPredictor(net)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to build predictor pool")
		}
		a.all = append(a.all, p)
		a.predictors <- p
	}
	return a, nil
}

// Infer implements mcts.Inferencer. The network's tanh value in [-1,1] is
// mapped onto the [0,1] winrate the search works in.
func (a *Agent) Infer(pos game.Position) (policy []float32, value float32) {
	planes := EncodePosition(pos, nil)

	p := <-a.predictors
	policy, v, err := p.Predict(planes)
	a.predictors <- p
	if err != nil {
		// the evaluator does not fail recoverably; a broken net is fatal
		panic(fmt.Sprintf("leela: inference failed: %+v", err))
	}
	return policy, (v + 1) / 2
}

// NewSearch creates a per-move search sharing the agent's table and config.
func (a *Agent) NewSearch(pos game.Position) *mcts.Search {
	return mcts.NewSearch(pos, a, a.TT, a.Conf)
}

// Close releases the predictor pool.
func (a *Agent) Close() error {
	close(a.predictors)
	var firstErr error
	for _, p := range a.all {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SelfPlay plays one game from pos against the agent itself and returns the
// recorded examples.
func (a *Agent) SelfPlay(pos game.Position, maxPlies int) ([]training.Example, error) {
	return SelfPlay(a, a.TT, a.Conf, pos, maxPlies)
}

// SelfPlay plays one game from pos with the evaluator playing itself,
// exploration on (root noise, proportional sampling), and returns one
// training example per position played. maxPlies bounds runaway games.
func SelfPlay(nn mcts.Inferencer, tt *mcts.TTable, conf mcts.Config, pos game.Position, maxPlies int) ([]training.Example, error) {
	gameID := uuid.New()

	conf.Noise = true
	conf.Quiet = true
	if conf.RandomCount == 0 {
		conf.RandomCount = 8
	}

	var examples []training.Example
	var sides []game.Color

	outcome := float32(0.5) // White's frame
	for ply := 0; ply < maxPlies; ply++ {
		if pos.IsDraw() {
			break
		}
		if len(pos.LegalMoves()) == 0 {
			if pos.InCheck() {
				if pos.SideToMove() == game.White {
					outcome = 0
				} else {
					outcome = 1
				}
			}
			break
		}

		s := mcts.NewSearch(pos, nn, tt, conf)
		move := s.Think()
		if move == game.MoveNone {
			// resignation: the mover scores it as lost
			if pos.SideToMove() == game.White {
				outcome = 0
			} else {
				outcome = 1
			}
			break
		}

		examples = append(examples, training.Example{
			GameID: gameID,
			Board:  EncodePosition(pos, nil),
			Policy: PolicyTarget(s.Root(), pos.ActionSpace()),
		})
		sides = append(sides, pos.SideToMove())

		pos.Do(move)
	}

	// targets are from each position's side to move, like the net output
	for i := range examples {
		if sides[i] == game.White {
			examples[i].Value = outcome*2 - 1
		} else {
			examples[i].Value = (1-outcome)*2 - 1
		}
	}
	return examples, nil
}
