package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledByDefault(t *testing.T) {
	Reset()
	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())
}

func TestInitRegistryEnables(t *testing.T) {
	Reset()
	reg := InitRegistry()
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
}

func TestInitRegistryIdempotent(t *testing.T) {
	Reset()
	first := InitRegistry()
	second := InitRegistry()
	assert.Same(t, first, second)
}
