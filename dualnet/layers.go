package dualnet

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// batchNormOp is the toggle handle nnops.BatchNorm returns; the network
// keeps one per normalization to switch between training and inference.
type batchNormOp interface {
	SetTraining()
	SetTesting()
	Reset() error
}

// netBuilder assembles the network graph. It owns the graph, threads the
// first construction error through every layer call, and collects the
// batchnorm handles as they are made, so Init reads as the architecture
// itself rather than as error plumbing.
type netBuilder struct {
	g    *G.ExprGraph
	conf Config
	ops  []batchNormOp
	err  error
}

func newBuilder(g *G.ExprGraph, conf Config) *netBuilder {
	return &netBuilder{g: g, conf: conf}
}

func (b *netBuilder) apply(f func() (*G.Node, error)) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	if retVal, b.err = f(); b.err != nil {
		b.err = errors.WithStack(b.err)
	}
	return retVal
}

func (b *netBuilder) conv(input *G.Node, filters, size int, name string) *G.Node {
	if b.err != nil {
		return nil
	}
	channels := input.Shape()[1]
	pad := (size - 1) / 2
	filter := G.NewTensor(b.g, Float, 4,
		G.WithShape(filters, channels, size, size),
		G.WithName(name+"_filter"),
		G.WithInit(G.GlorotU(1.0)))
	return b.apply(func() (*G.Node, error) {
		return nnops.Conv2d(input, filter, []int{size, size}, []int{pad, pad}, []int{1, 1}, []int{1, 1})
	})
}

func (b *netBuilder) batchnorm(input *G.Node) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	var op batchNormOp
	// scale and bias are created and learned even though nil is passed
	if retVal, _, _, op, b.err = nnops.BatchNorm(input, nil, nil, 0.997, 1e-5); b.err != nil {
		b.err = errors.WithStack(b.err)
		return nil
	}
	b.ops = append(b.ops, op)
	return retVal
}

func (b *netBuilder) rectify(input *G.Node) *G.Node {
	return b.apply(func() (*G.Node, error) { return nnops.Rectify(input) })
}

func (b *netBuilder) reshape(input *G.Node, to tensor.Shape) *G.Node {
	return b.apply(func() (*G.Node, error) { return G.Reshape(input, to) })
}

func (b *netBuilder) dense(input *G.Node, units int, name string) *G.Node {
	if b.err != nil {
		return nil
	}
	w := G.NewTensor(b.g, Float, 2,
		G.WithShape(input.Shape()[1], units),
		G.WithName(name+"_w"),
		G.WithInit(G.GlorotN(1.0)))
	xw := b.apply(func() (*G.Node, error) { return G.Mul(input, w) })
	if b.err != nil {
		return nil
	}
	bias := G.NewTensor(b.g, Float, xw.Shape().Dims(),
		G.WithShape(xw.Shape().Clone()...),
		G.WithName(name+"_b"),
		G.WithInit(G.Zeroes()))
	return b.apply(func() (*G.Node, error) { return G.Add(xw, bias) })
}

// convBlock is conv → batchnorm → relu, the unit the tower is made of.
func (b *netBuilder) convBlock(input *G.Node, filters, size int, name string) *G.Node {
	return b.rectify(b.batchnorm(b.conv(input, filters, size, name)))
}

// residualBlock is two 3x3 convolutions with a skip connection around them.
// The input must already be at `filters` channels; the tower's input block
// guarantees that.
func (b *netBuilder) residualBlock(input *G.Node, filters, layer int) *G.Node {
	name := fmt.Sprintf("Res%d", layer)
	out := b.convBlock(input, filters, 3, name+"A")
	out = b.batchnorm(b.conv(out, filters, 3, name+"B"))
	out = b.apply(func() (*G.Node, error) { return G.Add(out, input) })
	return b.rectify(out)
}

// policyHead compresses the tower to two move planes and maps them onto the
// from x to action space the search indexes with Move.Index. Returns the
// raw logits; the softmax sits with the output so the cost can reuse them.
func (b *netBuilder) policyHead(trunk *G.Node) (logits *G.Node) {
	squares := b.conf.Height * b.conf.Width
	head := b.convBlock(trunk, 2, 1, "PolicyHead")
	head = b.reshape(head, tensor.Shape{b.conf.BatchSize, 2 * squares})
	return b.dense(head, b.conf.ActionSpace, "Policy")
}

// valueHead compresses the tower to a single plane and squashes it through
// a hidden layer into one tanh score per position, from the side to move's
// perspective.
func (b *netBuilder) valueHead(trunk *G.Node) *G.Node {
	squares := b.conf.Height * b.conf.Width
	head := b.convBlock(trunk, 1, 1, "ValueHead")
	head = b.reshape(head, tensor.Shape{b.conf.BatchSize, squares})
	head = b.rectify(b.dense(head, b.conf.FC, "Value"))
	head = b.dense(head, 1, "ValueOut")
	head = b.reshape(head, tensor.Shape{b.conf.BatchSize})
	return b.apply(func() (*G.Node, error) { return G.Tanh(head) })
}

// policyCost is the softmax cross entropy between the move logits and the
// search's visit distribution.
func (b *netBuilder) policyCost(logits, target *G.Node) *G.Node {
	probs := b.apply(func() (*G.Node, error) { return G.SoftMax(logits) })
	logProbs := b.apply(func() (*G.Node, error) { return G.Log(probs) })
	ce := b.apply(func() (*G.Node, error) { return G.HadamardProd(target, logProbs) })
	ce = b.apply(func() (*G.Node, error) { return G.Sum(ce, 1) })
	ce = b.apply(func() (*G.Node, error) { return G.Mean(ce) })
	return b.apply(func() (*G.Node, error) { return G.Neg(ce) })
}

// valueCost is the mean squared error between the tanh score and the game
// outcome.
func (b *netBuilder) valueCost(value, target *G.Node) *G.Node {
	diff := b.apply(func() (*G.Node, error) { return G.Sub(value, target) })
	diff = b.apply(func() (*G.Node, error) { return G.Square(diff) })
	return b.apply(func() (*G.Node, error) { return G.Mean(diff) })
}
