// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/magcal/internal/field"
)

// MinPoints is the smallest sample count that determines the ten quadric
// coefficients up to scale.
const MinPoints = 9

// Eigenvalue ratio below which the normal equations are treated as rank
// deficient (coplanar or collinear samples).
const condTol = 1e-9

// FitLS fits the quadric coefficients to a point cloud by linear least
// squares. The homogeneous system D·v = 0 is scale invariant, so the solution
// is the unit-norm null vector of DᵀD (the eigenvector of its smallest
// eigenvalue), rescaled afterward so the pure quadratic coefficients satisfy
// a² + b² + c² = 1. Rank-deficient sample geometry is reported as
// ErrIllConditioned rather than returning garbage coefficients.
func FitLS(points []field.Vec3) (Quadric, error) {
	if len(points) < MinPoints {
		return Quadric{}, ErrInsufficientData
	}

	d := mat.NewDense(len(points), 10, nil)
	for i, p := range points {
		d.SetRow(i, []float64{
			p.X * p.X, p.Y * p.Y, p.Z * p.Z,
			2 * p.Y * p.Z, 2 * p.X * p.Z, 2 * p.X * p.Y,
			2 * p.X, 2 * p.Y, 2 * p.Z, 1,
		})
	}

	var normal mat.SymDense
	normal.SymOuterK(1, d.T())

	var es mat.EigenSym
	if !es.Factorize(&normal, true) {
		return Quadric{}, ErrIllConditioned
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	SortEigen(vals, &vecs)

	// A usable fit needs a one-dimensional null space: the smallest eigenvalue
	// near zero and the second-smallest clearly not.
	if vals[1] <= condTol*math.Max(vals[9], 1) {
		return Quadric{}, ErrIllConditioned
	}

	v := make([]float64, 10)
	mat.Col(v, 0, &vecs)
	scale := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if scale < condTol {
		return Quadric{}, ErrIllConditioned
	}
	if v[0]+v[1]+v[2] < 0 {
		scale = -scale
	}
	for i := range v {
		v[i] /= scale
	}

	return Quadric{
		A: v[0], B: v[1], C: v[2],
		F: v[3], G: v[4], H: v[5],
		P: v[6], Q: v[7], R: v[8],
		D: v[9],
	}, nil
}
