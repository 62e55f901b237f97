// Command leela runs the engine: a UCI-style loop over stdin/stdout by
// default, or a self-play data generator with -selfplay.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	leela "github.com/liujh168/leela-chess"
	"github.com/liujh168/leela-chess/dualnet"
	"github.com/liujh168/leela-chess/game"
	"github.com/liujh168/leela-chess/game/minichess"
	"github.com/liujh168/leela-chess/mcts"
	"github.com/liujh168/leela-chess/training"
	"github.com/liujh168/leela-chess/uci"
	"github.com/muesli/termenv"
)

var (
	threads   = flag.Int("threads", 0, "worker threads (0 = all CPUs)")
	playouts  = flag.Int("playouts", 1600, "default playout cap (0 = unbounded)")
	noise     = flag.Bool("noise", false, "mix Dirichlet noise into the root priors")
	resignPct = flag.Int("resign-pct", 10, "resign below this winrate percentage")
	quiet     = flag.Bool("quiet", false, "suppress analysis output")
	weights   = flag.String("weights", "", "network weights to load")
	selfplay  = flag.Int("selfplay", 0, "play this many self-play games and exit")
	gamesOut  = flag.String("games-out", "selfplay.gob.gz", "self-play example output file")
)

func main() {
	flag.Parse()
	log := uci.NewLogger()

	conf := mcts.DefaultConfig()
	if *threads > 0 {
		conf.NumThreads = *threads
	}
	conf.MaxPlayouts = int32(*playouts)
	conf.Noise = *noise
	conf.ResignPct = *resignPct
	conf.Quiet = *quiet

	net := dualnet.New(dualnet.DefaultConfig(minichess.New()))
	if err := net.Init(); err != nil {
		log.Fatal().Err(err).Msg("unable to initialize network")
	}
	if *weights != "" {
		if err := loadWeights(net, *weights); err != nil {
			log.Fatal().Err(err).Str("path", *weights).Msg("unable to load weights")
		}
		log.Info().Str("path", *weights).Msg("weights loaded")
	}

	agent, err := leela.NewAgent(net, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to build agent")
	}
	defer agent.Close()

	if *selfplay > 0 {
		runSelfplay(agent, *selfplay, *gamesOut)
		return
	}

	engine := uci.New(newGame, agent, conf, os.Stdout, "leela-chess", "0.1")
	in, out := engine.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		tty := termenv.NewOutput(os.Stdout)
		for line := range out {
			if strings.HasPrefix(line, "bestmove") {
				fmt.Println(tty.String(line).Foreground(tty.Color("#5FD700")).Bold())
			} else {
				fmt.Println(line)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		in <- line
		if strings.TrimSpace(line) == "quit" {
			break
		}
	}
	<-done
}

func newGame() game.Position { return minichess.New() }

func runSelfplay(agent *leela.Agent, games int, out string) {
	log := uci.NewLogger()
	var examples []training.Example
	for i := 0; i < games; i++ {
		ex, err := agent.SelfPlay(minichess.New(), 200)
		if err != nil {
			log.Fatal().Err(err).Int("game", i).Msg("self-play failed")
		}
		examples = append(examples, ex...)
		log.Info().Int("game", i).Int("examples", len(ex)).Msg("game finished")
	}
	if err := training.Record(out, examples); err != nil {
		log.Fatal().Err(err).Msg("unable to record examples")
	}
	log.Info().Str("path", out).Int("examples", len(examples)).Msg("examples recorded")
}

func loadWeights(net *dualnet.Network, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return net.GobDecode(buf)
}
