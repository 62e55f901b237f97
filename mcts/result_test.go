package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResultZeroValueIsInvalid(t *testing.T) {
	var r SearchResult
	assert.False(t, r.Valid())
}

func TestFromEval(t *testing.T) {
	r := FromEval(0.25)
	assert.True(t, r.Valid())
	assert.Equal(t, float32(0.25), r.Eval())
}

func TestFromScore(t *testing.T) {
	assert.Equal(t, float32(0), FromScore(-1).Eval())
	assert.Equal(t, float32(0.5), FromScore(0).Eval())
	assert.Equal(t, float32(1), FromScore(1).Eval())
}
