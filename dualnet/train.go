package dualnet

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// span is the one-step row range Train cuts batches with.
type span struct{ from, to int }

func (s span) Start() int { return s.from }
func (s span) End() int   { return s.to }
func (s span) Step() int  { return 1 }

// Train fits the network to pre-batched self-play examples: input planes,
// visit distributions and game outcomes. One virtual machine and one solver
// serve every batch; rows are reshuffled between iterations. L2
// regularization comes from the config.
func Train(n *Network, Xs, policies, values *tensor.Dense, batches, iterations int) error {
	if n.FwdOnly {
		return errors.New("cannot train a forward-only network")
	}
	n.SetTraining()

	vm := G.NewTapeMachine(n.g, G.BindDualValues(n.Model()...))
	defer vm.Close()
	model := G.NodesToValueGrads(n.Model())
	solver := G.NewVanillaSolver(G.WithLearnRate(0.1), G.WithL2Reg(n.L2))

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < iterations; i++ {
		for bat := 0; bat < batches; bat++ {
			start := bat * n.BatchSize
			end := start + n.BatchSize

			xs, err := sliceRows(Xs, start, end)
			if err != nil {
				return err
			}
			π, err := sliceRows(policies, start, end)
			if err != nil {
				return err
			}
			v, err := sliceRows(values, start, end)
			if err != nil {
				return err
			}

			G.Let(n.planes, xs)
			G.Let(n.policyTarget, π)
			G.Let(n.valueTarget, v)

			vm.Reset()
			if err := vm.RunAll(); err != nil {
				return errors.Wrapf(err, "batch %d of iteration %d failed", bat, i)
			}
			if err := solver.Step(model); err != nil {
				return err
			}
			tensor.ReturnTensor(xs)
			tensor.ReturnTensor(π)
			tensor.ReturnTensor(v)
		}
		if err := shuffleRows(r, Xs, policies, values); err != nil {
			return err
		}
	}
	return nil
}

func sliceRows(a *tensor.Dense, start, end int) (*tensor.Dense, error) {
	view, err := a.Slice(span{from: start, to: end})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to slice rows %d:%d", start, end)
	}
	return view.(*tensor.Dense), nil
}

// shuffleRows applies one row permutation to every tensor, keeping planes,
// policies and outcomes aligned. Rows are swapped on the flat backings, so
// shapes never change.
func shuffleRows(r *rand.Rand, ts ...*tensor.Dense) error {
	rows := ts[0].Shape()[0]
	datas := make([][]float32, len(ts))
	strides := make([]int, len(ts))
	maxStride := 0
	for i, t := range ts {
		if t.Shape()[0] != rows {
			return errors.Errorf("row count mismatch: %d vs %d", t.Shape()[0], rows)
		}
		datas[i] = t.Data().([]float32)
		strides[i] = t.Shape().TotalSize() / rows
		if strides[i] > maxStride {
			maxStride = strides[i]
		}
	}

	tmp := make([]float32, maxStride)
	r.Shuffle(rows, func(i, j int) {
		for k, data := range datas {
			s := strides[k]
			a, b := data[i*s:(i+1)*s], data[j*s:(j+1)*s]
			copy(tmp, a)
			copy(a, b)
			copy(b, tmp[:s])
		}
	})
	return nil
}
