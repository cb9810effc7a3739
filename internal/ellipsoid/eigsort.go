// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SortEigen reorders an eigen-decomposition in place so the eigenvalues are
// ascending, permuting the eigenvector columns identically. Because symmetric
// eigensolvers return eigenvectors with arbitrary sign, each column is then
// flipped so its largest-magnitude component is positive. This makes the
// decomposition deterministic; A = R·D·Rᵀ products are unaffected by the
// column flips. SortEigen is idempotent.
//
// vecs must be square with one column per eigenvalue; anything else is a
// caller bug.
func SortEigen(vals []float64, vecs *mat.Dense) {
	rows, cols := vecs.Dims()
	if rows != cols || cols != len(vals) {
		panic("ellipsoid: eigenvalue/eigenvector shape mismatch")
	}

	for i := 0; i < len(vals)-1; i++ {
		min := i
		for j := i + 1; j < len(vals); j++ {
			if vals[j] < vals[min] {
				min = j
			}
		}
		if min == i {
			continue
		}
		vals[i], vals[min] = vals[min], vals[i]
		for k := 0; k < rows; k++ {
			vki := vecs.At(k, i)
			vecs.Set(k, i, vecs.At(k, min))
			vecs.Set(k, min, vki)
		}
	}

	for j := 0; j < cols; j++ {
		lead := 0
		for k := 1; k < rows; k++ {
			if math.Abs(vecs.At(k, j)) > math.Abs(vecs.At(lead, j)) {
				lead = k
			}
		}
		if vecs.At(lead, j) < 0 {
			for k := 0; k < rows; k++ {
				vecs.Set(k, j, -vecs.At(k, j))
			}
		}
	}
}
