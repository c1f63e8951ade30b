package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector remains unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"scale non-unit vector", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{-1 / float32(math.Sqrt2), 1 / float32(math.Sqrt2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
		})
	}

	t.Run("zero vector stays zero", func(t *testing.T) {
		assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := []float32{3, 4}
		NormalizeVector(in)
		assert.Equal(t, []float32{3, 4}, in)
	})
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 2}, []float32{1, 2}))
	assert.Equal(t, float32(25), SquaredL2([]float32{0, 0}, []float32{3, 4}))
}

func TestCheckDimensions(t *testing.T) {
	dim, err := CheckDimensions([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	dim, err = CheckDimensions(nil)
	require.NoError(t, err)
	assert.Zero(t, dim)

	_, err = CheckDimensions([][]float32{{1, 2}, {1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = CheckDimensions([][]float32{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
