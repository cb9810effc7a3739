// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/magcal/internal/field"
)

// Measurements closer than this to the ellipsoid center have no usable ray
// direction and are excluded from scoring.
const epsRay = 1e-9

// Intersect returns the point where the ray from the ellipsoid center re
// through the measurement rm crosses the ellipsoid surface. Q, ub and k are
// the quadratic, linear and constant terms of the quadric in center-relative
// coordinates (ub is zero for a quadric translated exactly to its center).
// Substituting the parametric ray y = t·(rm − re) into yᵀQy + ub·y + k = 0
// gives a quadratic in t; the smaller positive root is the surface crossing
// between center and measurement direction. ok is false when the ray
// direction is degenerate or no positive real root exists.
func Intersect(rm, re field.Vec3, q *mat.SymDense, ub field.Vec3, k float64) (field.Vec3, bool) {
	u := rm.Sub(re)
	if u.Norm() < epsRay {
		return field.Vec3{}, false
	}

	uv := mat.NewVecDense(3, []float64{u.X, u.Y, u.Z})
	var qu mat.VecDense
	qu.MulVec(q, uv)

	a := mat.Dot(uv, &qu)
	b := ub.Dot(u)
	disc := b*b - 4*a*k
	if a == 0 || disc < 0 {
		return field.Vec3{}, false
	}

	sq := math.Sqrt(disc)
	t := (-b - sq) / (2 * a)
	if t <= 0 {
		t = (-b + sq) / (2 * a)
	}
	if t <= 0 {
		return field.Vec3{}, false
	}
	return re.Add(u.Scale(t)), true
}
