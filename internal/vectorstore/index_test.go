package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFlatAdd tests insertion and dimension enforcement
func TestFlatAdd(t *testing.T) {
	f := NewFlat(3)

	require.NoError(t, f.Add(1, []float32{1, 0, 0}))
	require.NoError(t, f.Add(2, []float32{0, 1, 0}))
	require.Equal(t, 2, f.Len())
	require.Equal(t, 3, f.Dimension())

	err := f.Add(3, []float32{1, 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
}

// TestFlatSearch tests nearest-neighbor ordering by squared L2 distance
func TestFlatSearch(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(10, []float32{1, 0}))   // distance 0
	require.NoError(t, f.Add(20, []float32{0, 1}))   // distance 2
	require.NoError(t, f.Add(30, []float32{0.5, 0})) // distance 0.25
	require.NoError(t, f.Add(40, []float32{-1, 0}))  // distance 4

	hits, err := f.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	require.Equal(t, int64(10), hits[0].ID)
	require.InDelta(t, 0.0, hits[0].Distance, 1e-6)
	require.Equal(t, int64(30), hits[1].ID)
	require.InDelta(t, 0.25, hits[1].Distance, 1e-6)
	require.Equal(t, int64(20), hits[2].ID)
	require.InDelta(t, 2.0, hits[2].Distance, 1e-6)
}

// TestFlatSearchKClamped tests that k larger than the index returns everything
func TestFlatSearchKClamped(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(1, []float32{1, 0}))
	require.NoError(t, f.Add(2, []float32{0, 1}))

	hits, err := f.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

// TestFlatSearchEmpty tests degenerate inputs
func TestFlatSearchEmpty(t *testing.T) {
	f := NewFlat(2)

	hits, err := f.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)

	require.NoError(t, f.Add(1, []float32{1, 0}))

	hits, err = f.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, hits)
}

// TestFlatSearchDimensionMismatch tests query validation
func TestFlatSearchDimensionMismatch(t *testing.T) {
	f := NewFlat(3)
	require.NoError(t, f.Add(1, []float32{1, 0, 0}))

	_, err := f.Search([]float32{1, 0}, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
}

// TestFlatSearchTieBreak tests that equal distances order by id
func TestFlatSearchTieBreak(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(5, []float32{0, 1}))
	require.NoError(t, f.Add(2, []float32{0, 1}))
	require.NoError(t, f.Add(9, []float32{0, 1}))

	hits, err := f.Search([]float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, int64(2), hits[0].ID)
	require.Equal(t, int64(5), hits[1].ID)
	require.Equal(t, int64(9), hits[2].ID)
}

// TestFlatAddCopiesVector tests that callers cannot mutate stored rows
func TestFlatAddCopiesVector(t *testing.T) {
	f := NewFlat(2)
	vec := []float32{1, 0}
	require.NoError(t, f.Add(1, vec))

	vec[0] = -1

	hits, err := f.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.InDelta(t, 0.0, hits[0].Distance, 1e-6)
}

// TestFlatClone tests snapshot isolation between clone and original
func TestFlatClone(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(1, []float32{1, 0}))

	clone := f.Clone()
	require.NoError(t, clone.Add(2, []float32{0, 1}))

	require.Equal(t, 1, f.Len())
	require.Equal(t, 2, clone.Len())
}
