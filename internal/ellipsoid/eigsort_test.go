package ellipsoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSortEigenOrdersAscending(t *testing.T) {
	vals := []float64{3, 1, 2}
	vecs := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})

	SortEigen(vals, vecs)

	assert.Equal(t, []float64{1, 2, 3}, vals)
	// Columns follow their eigenvalues: old column 1 first, then 2, then 0.
	assert.Equal(t, 1.0, vecs.At(1, 0))
	assert.Equal(t, 1.0, vecs.At(2, 1))
	assert.Equal(t, 1.0, vecs.At(0, 2))
}

func TestSortEigenIdempotent(t *testing.T) {
	m := mat.NewSymDense(3, []float64{
		4, 1, 0.5,
		1, 3, -0.2,
		0.5, -0.2, 2,
	})
	var es mat.EigenSym
	require.True(t, es.Factorize(m, true))
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	SortEigen(vals, &vecs)

	valsAgain := append([]float64(nil), vals...)
	var vecsAgain mat.Dense
	vecsAgain.CloneFrom(&vecs)
	SortEigen(valsAgain, &vecsAgain)

	assert.Equal(t, vals, valsAgain)
	assert.True(t, mat.Equal(&vecs, &vecsAgain))
}

func TestSortEigenCanonicalSign(t *testing.T) {
	vals := []float64{1, 2, 3}
	vecs := mat.NewDense(3, 3, []float64{
		-1, 0, 0,
		0, 1, 0,
		0, 0, -1,
	})

	SortEigen(vals, vecs)

	// Largest-magnitude component of each column made positive.
	assert.Equal(t, 1.0, vecs.At(0, 0))
	assert.Equal(t, 1.0, vecs.At(1, 1))
	assert.Equal(t, 1.0, vecs.At(2, 2))
}

func TestSortEigenShapeMismatchPanics(t *testing.T) {
	vals := []float64{1, 2}
	vecs := mat.NewDense(3, 3, nil)
	assert.Panics(t, func() { SortEigen(vals, vecs) })
}
