package dualnet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func tinyConfig() Config {
	return Config{
		Filters:      2,
		SharedLayers: 1,
		FC:           4,
		BatchSize:    4,
		Height:       4,
		Width:        4,
		Features:     4,
		ActionSpace:  16,
	}
}

func TestInitBuildsGraph(t *testing.T) {
	n := New(tinyConfig())
	require.NoError(t, n.Init())
	assert.NotEmpty(t, n.Model())
}

func TestPredictShapes(t *testing.T) {
	n := New(tinyConfig())
	require.NoError(t, n.Init())

	p, err := NewPredictor(n)
	require.NoError(t, err)
	defer p.Close()

	planes := make([]float32, 4*4*4)
	planes[0] = 1
	policy, value, err := p.Predict(planes)
	require.NoError(t, err)

	assert.Len(t, policy, 16)
	var sum float32
	for _, pr := range policy {
		sum += pr
	}
	assert.InDelta(t, 1.0, sum, 1e-3, "policy is a distribution")
	assert.GreaterOrEqual(t, value, float32(-1))
	assert.LessOrEqual(t, value, float32(1))
}

func TestPredictRejectsWrongPlaneCount(t *testing.T) {
	n := New(tinyConfig())
	require.NoError(t, n.Init())

	p, err := NewPredictor(n)
	require.NoError(t, err)
	defer p.Close()

	_, _, err = p.Predict(make([]float32, 7))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	n := New(tinyConfig())
	require.NoError(t, n.Init())

	n2, err := n.Clone()
	require.NoError(t, err)

	m1, m2 := n.Model(), n2.Model()
	require.Equal(t, len(m1), len(m2))
	for i := range m1 {
		assert.Equal(t, m1[i].Value().Data(), m2[i].Value().Data())
	}
}

func TestTrainRejectsForwardOnly(t *testing.T) {
	conf := tinyConfig()
	conf.FwdOnly = true
	n := New(conf)
	require.NoError(t, n.Init())

	err := Train(n, nil, nil, nil, 0, 0)
	assert.Error(t, err)
}

func TestShuffleRowsKeepsRowsAligned(t *testing.T) {
	Xs := tensor.New(tensor.WithShape(4, 2),
		tensor.WithBacking([]float32{0, 0, 1, 1, 2, 2, 3, 3}))
	vs := tensor.New(tensor.WithShape(4),
		tensor.WithBacking([]float32{0, 1, 2, 3}))

	r := rand.New(rand.NewSource(3))
	require.NoError(t, shuffleRows(r, Xs, vs))

	xsData := Xs.Data().([]float32)
	vsData := vs.Data().([]float32)
	for i := 0; i < 4; i++ {
		assert.Equal(t, vsData[i], xsData[2*i], "row %d planes follow their outcome", i)
		assert.Equal(t, vsData[i], xsData[2*i+1])
	}
}

func TestShuffleRowsRejectsMismatch(t *testing.T) {
	a := tensor.New(tensor.WithShape(4, 2), tensor.Of(tensor.Float32))
	b := tensor.New(tensor.WithShape(3), tensor.Of(tensor.Float32))

	r := rand.New(rand.NewSource(1))
	assert.Error(t, shuffleRows(r, a, b))
}
