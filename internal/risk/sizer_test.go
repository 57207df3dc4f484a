package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizer_MeetsMinimum(t *testing.T) {
	s := Sizer{PositionSizePercent: 5}

	// (1000 * 0.05) / 50000 = 0.001, exactly at the venue minimum.
	assert.InDelta(t, 0.001, s.Size(1000, 50000, 0.001), 1e-12)
}

func TestSizer_BelowMinimumReturnsZero(t *testing.T) {
	s := Sizer{PositionSizePercent: 5}

	assert.Equal(t, 0.0, s.Size(1000, 50000, 0.01))
}

func TestSizer_DegenerateInputs(t *testing.T) {
	s := Sizer{PositionSizePercent: 5}

	assert.Equal(t, 0.0, s.Size(0, 50000, 0.001))
	assert.Equal(t, 0.0, s.Size(-10, 50000, 0.001))
	assert.Equal(t, 0.0, s.Size(1000, 0, 0.001))
}
