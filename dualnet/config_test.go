package dualnet

import (
	"testing"

	"github.com/liujh168/leela-chess/game/minichess"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := DefaultConfig(minichess.New())
	assert.True(t, conf.IsValid())
	assert.Equal(t, 4, conf.Height)
	assert.Equal(t, 4, conf.Width)
	assert.Equal(t, 4, conf.Features)
	assert.Equal(t, 4096, conf.ActionSpace)
}

func TestConfigValidation(t *testing.T) {
	conf := DefaultConfig(minichess.New())

	bad := conf
	bad.Filters = 0
	assert.False(t, bad.IsValid())

	bad = conf
	bad.ActionSpace = 2
	assert.False(t, bad.IsValid())

	bad = conf
	bad.Features = 0
	assert.False(t, bad.IsValid())

	bad = conf
	bad.BatchSize = 0
	assert.False(t, bad.IsValid())
}

func TestNextPow2(t *testing.T) {
	assert.Equal(t, 4, nextPow2(5))
	assert.Equal(t, 8, nextPow2(7))
	assert.Equal(t, 16, nextPow2(16))
}
