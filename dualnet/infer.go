package dualnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Predictor is the search-facing side of a trained network: a forward-only
// clone evaluating one position at a time, with its tape machine built once
// so a playout pays only for the forward pass.
type Predictor struct {
	net   *Network
	vm    G.VM
	input *tensor.Dense
	dims  int
}

// NewPredictor clones net into a single-position inference graph and copies
// the trained weights across.
func NewPredictor(net *Network) (*Predictor, error) {
	conf := net.Config
	conf.FwdOnly = true
	conf.BatchSize = 1

	p := &Predictor{
		net:   New(conf),
		input: tensor.New(tensor.WithShape(1, conf.Features, conf.Height, conf.Width), tensor.Of(Float)),
		dims:  conf.Features * conf.Height * conf.Width,
	}
	if err := p.net.Init(); err != nil {
		return nil, errors.WithMessage(err, "unable to build inference graph")
	}
	p.net.SetTesting()

	target := p.net.Model()
	for i, src := range net.Model() {
		copy(target[i].Value().Data().([]float32), src.Value().Data().([]float32))
	}

	p.vm = G.NewTapeMachine(p.net.g)
	return p, nil
}

// Predict runs one position's feature planes through the network. The value
// is the tanh output in [-1,1] from the side to move's perspective; the
// policy is indexed by Move.Index.
func (p *Predictor) Predict(planes []float32) (policy []float32, value float32, err error) {
	if len(planes) != p.dims {
		return nil, 0, errors.Errorf("expected %d plane values, got %d", p.dims, len(planes))
	}
	for _, op := range p.net.ops {
		op.Reset()
	}
	copy(p.input.Data().([]float32), planes)

	p.vm.Reset()
	G.Let(p.net.planes, p.input)
	if err = p.vm.RunAll(); err != nil {
		return nil, 0, errors.Wrap(err, "inference failed")
	}
	policy = p.net.policyVal.Data().([]float32)
	value = p.net.valueVal.Data().([]float32)[0]
	return policy[:p.net.ActionSpace], value, nil
}

// Close releases the VM.
func (p *Predictor) Close() error { return p.vm.Close() }
