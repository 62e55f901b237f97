package dualnet

import (
	"bytes"
	"encoding/gob"

	G "gorgonia.org/gorgonia"
)

// Float is the dtype the whole network runs in.
var Float = G.Float32

// Network is the evaluator the search consults: a residual convolution
// tower over the position's feature planes, a policy head producing a
// distribution over the from x to move space, and a value head scoring the
// position for the side to move.
type Network struct {
	Config
	ops []batchNormOp

	g      *G.ExprGraph
	planes *G.Node

	// training targets, nil on forward-only graphs
	policyTarget *G.Node
	valueTarget  *G.Node

	policyOutput *G.Node
	valueOutput  *G.Node

	policyVal G.Value
	valueVal  G.Value
	costVal   G.Value
}

// New returns a new, uninitialized *Network.
func New(conf Config) *Network { return &Network{Config: conf} }

// Init builds the graph: the tower, both heads, and, unless the network is
// forward-only, the combined training cost and its gradients.
func (n *Network) Init() error {
	n.reset()
	n.g = G.NewGraph()
	b := newBuilder(n.g, n.Config)

	n.planes = G.NewTensor(n.g, Float, 4,
		G.WithShape(n.BatchSize, n.Features, n.Height, n.Width),
		G.WithName("Planes"))

	// the input block lifts the feature planes to the tower width so every
	// residual block can skip-connect at the same shape
	trunk := b.convBlock(n.planes, n.Filters, 3, "Input")
	for i := 0; i < n.SharedLayers; i++ {
		trunk = b.residualBlock(trunk, n.Filters, i)
	}

	logits := b.policyHead(trunk)
	n.policyOutput = b.apply(func() (*G.Node, error) { return G.SoftMax(logits) })
	G.Read(n.policyOutput, &n.policyVal)

	n.valueOutput = b.valueHead(trunk)
	G.Read(n.valueOutput, &n.valueVal)

	n.ops = b.ops
	if b.err != nil {
		return b.err
	}
	if n.FwdOnly {
		return nil
	}
	return n.buildCost(b, logits)
}

func (n *Network) buildCost(b *netBuilder, logits *G.Node) error {
	n.policyTarget = G.NewMatrix(n.g, Float,
		G.WithShape(n.BatchSize, n.ActionSpace), G.WithName("PolicyTarget"))
	n.valueTarget = G.NewVector(n.g, Float,
		G.WithShape(n.BatchSize), G.WithName("ValueTarget"))

	pcost := b.policyCost(logits, n.policyTarget)
	vcost := b.valueCost(n.valueOutput, n.valueTarget)
	cost := b.apply(func() (*G.Node, error) { return G.Add(pcost, vcost) })
	if b.err != nil {
		return b.err
	}
	G.Read(cost, &n.costVal)

	if _, err := G.Grad(cost, n.Model()...); err != nil {
		return err
	}
	return nil
}

// Model returns the learnable weights.
func (n *Network) Model() G.Nodes {
	retVal := make(G.Nodes, 0, n.g.Nodes().Len())
	for _, node := range n.g.AllNodes() {
		if node.IsVar() && node != n.planes && node != n.policyTarget && node != n.valueTarget {
			retVal = append(retVal, node)
		}
	}
	return retVal
}

// Cost returns the combined training cost of the most recent batch.
func (n *Network) Cost() float32 {
	if n.costVal == nil {
		return 0
	}
	return n.costVal.Data().(float32)
}

// SetTraining puts the batchnorm ops into training mode.
func (n *Network) SetTraining() {
	for _, op := range n.ops {
		op.SetTraining()
	}
}

// SetTesting puts the batchnorm ops into inference mode.
func (n *Network) SetTesting() {
	for _, op := range n.ops {
		op.SetTesting()
	}
}

// Clone builds a fresh network with copied weights.
func (n *Network) Clone() (*Network, error) {
	n2 := New(n.Config)
	if err := n2.Init(); err != nil {
		return nil, err
	}
	model := n.Model()
	model2 := n2.Model()
	for i, node := range model {
		if err := G.Let(model2[i], node.Value()); err != nil {
			return nil, err
		}
	}
	return n2, nil
}

func (n *Network) reset() {
	n.ops = nil
	n.g = nil
	n.planes = nil
	n.policyTarget = nil
	n.valueTarget = nil
	n.policyOutput = nil
	n.valueOutput = nil
}

func (n *Network) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, node := range n.Model() {
		v := node.Value()
		if err := enc.Encode(&v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (n *Network) GobDecode(p []byte) error {
	n.reset()
	if err := n.Init(); err != nil {
		return err
	}
	buf := bytes.NewBuffer(p)
	dec := gob.NewDecoder(buf)
	for _, node := range n.Model() {
		var v G.Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		G.Let(node, v)
	}
	return nil
}
