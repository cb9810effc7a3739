// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/magcal/internal/field"
)

// Quadric holds the ten coefficients of the general second-degree surface
//
//	a·x² + b·y² + c·z² + 2f·yz + 2g·xz + 2h·xy + 2p·x + 2q·y + 2r·z + d = 0
//
// scaled so that a² + b² + c² = 1 with a + b + c > 0.
type Quadric struct {
	A, B, C, F, G, H, P, Q, R, D float64
}

// Matrix returns the symmetric 3×3 quadratic-form matrix of the surface.
func (q Quadric) Matrix() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		q.A, q.H, q.G,
		q.H, q.B, q.F,
		q.G, q.F, q.C,
	})
}

// Geometry is the quadric resolved into ellipsoid form: the center, the
// quadratic form Q with its constant term K in center-relative coordinates
// (surface points satisfy yᵀQy + K = 0 for y = x − Center), and the sorted
// eigen-decomposition of Q.
type Geometry struct {
	Center  field.Vec3
	Q       *mat.SymDense
	K       float64
	Eigvals [3]float64 // ascending, all positive
	Rot     *mat.Dense // eigenvectors as columns, matching Eigvals
}

// Geometry derives the ellipsoid geometry from the quadric. A quadric whose
// matrix is not positive-definite, or whose center-relative constant term is
// not negative, does not bound an ellipsoid and fails with
// ErrDegenerateGeometry.
func (q Quadric) Geometry() (*Geometry, error) {
	m := q.Matrix()

	// The center is where the gradient vanishes: Q·c = −(p,q,r). Cholesky
	// doubles as the positive-definiteness check.
	var ch mat.Cholesky
	if ok := ch.Factorize(m); !ok {
		return nil, ErrDegenerateGeometry
	}
	var cv mat.VecDense
	if err := ch.SolveVecTo(&cv, mat.NewVecDense(3, []float64{-q.P, -q.Q, -q.R})); err != nil {
		return nil, ErrDegenerateGeometry
	}
	center := field.Vec3{X: cv.AtVec(0), Y: cv.AtVec(1), Z: cv.AtVec(2)}

	// Translating to the center leaves yᵀQy + k = 0 with k = (p,q,r)·c + d.
	k := q.P*center.X + q.Q*center.Y + q.R*center.Z + q.D
	if k >= 0 {
		return nil, ErrDegenerateGeometry
	}

	var es mat.EigenSym
	if !es.Factorize(m, true) {
		return nil, ErrDegenerateGeometry
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	SortEigen(vals, &vecs)
	if vals[0] <= 0 {
		return nil, ErrDegenerateGeometry
	}

	geo := &Geometry{Center: center, Q: m, K: k, Rot: &vecs}
	copy(geo.Eigvals[:], vals)
	return geo, nil
}
