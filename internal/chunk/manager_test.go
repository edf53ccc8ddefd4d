package chunk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_InitialValue(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	assert.Equal(t, uint64(1000), m.Get())
}

func TestManager_GrowsAfterThresholdSuccesses(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	for i := 0; i < growthThreshold-1; i++ {
		m.OnSuccess()
		assert.Equal(t, uint64(1000), m.Get(), "should not grow before threshold")
	}
	m.OnSuccess()
	assert.Equal(t, uint64(1250), m.Get())
}

func TestManager_GrowthCapsAtMax(t *testing.T) {
	m := NewManager(1900, 100, 2000)
	for i := 0; i < growthThreshold; i++ {
		m.OnSuccess()
	}
	assert.Equal(t, uint64(2000), m.Get())
}

func TestManager_ShrinksOnChunkSizeError(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	m.OnProviderError(errors.New("response size too large"))
	assert.Equal(t, uint64(500), m.Get())
}

func TestManager_ShrinkFloorsAtMin(t *testing.T) {
	m := NewManager(150, 100, 2000)
	m.OnProviderError(errors.New("query timeout"))
	assert.Equal(t, uint64(100), m.Get())
}

func TestManager_IgnoresNonChunkSizeError(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	m.OnProviderError(errors.New("invalid address"))
	assert.Equal(t, uint64(1000), m.Get())
}

func TestManager_NonChunkSizeErrorDoesNotResetStreak(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	for i := 0; i < growthThreshold-1; i++ {
		m.OnSuccess()
	}
	m.OnProviderError(errors.New("invalid address"))
	m.OnSuccess()
	assert.Equal(t, uint64(1250), m.Get())
}

func TestManager_Reset(t *testing.T) {
	m := NewManager(1000, 100, 2000)
	for i := 0; i < growthThreshold; i++ {
		m.OnSuccess()
	}
	assert.Equal(t, uint64(1250), m.Get())
	m.Reset()
	assert.Equal(t, uint64(1000), m.Get())
}
