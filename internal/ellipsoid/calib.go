// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/magcal/internal/field"
)

// Calibration is the affine magnetometer correction: soft-iron matrix A
// (symmetric positive-definite), hard-iron bias B, and the reference field
// strength A is scaled to. Corrected reading = A·(raw − B), which lies near
// the reference sphere for raw readings on the fitted ellipsoid. A full run
// replaces the pair wholesale; there are no incremental updates.
type Calibration struct {
	A     [3][3]float64 `json:"soft_iron"`
	B     field.Vec3    `json:"hard_iron"`
	Field float64       `json:"reference_field_ut"`
}

// Apply corrects a raw reading.
func (c Calibration) Apply(raw field.Vec3) field.Vec3 {
	d := raw.Sub(c.B)
	return field.Vec3{
		X: c.A[0][0]*d.X + c.A[0][1]*d.Y + c.A[0][2]*d.Z,
		Y: c.A[1][0]*d.X + c.A[1][1]*d.Y + c.A[1][2]*d.Z,
		Z: c.A[2][0]*d.X + c.A[2][1]*d.Y + c.A[2][2]*d.Z,
	}
}

// Derive converts the final fitted quadric into calibration parameters,
// following Renaudin, Afzal & Lachapelle, "Complete triaxis magnetometer
// calibration in the magnetic domain" (2010), §5.3. The centered quadric is
// normalized to yᵀMy = 1 with M = Q/(−k); the eigenvalues μᵢ of M are the
// inverse squared semi-axes, so A = R·diag(F·√μᵢ)·Rᵀ maps the ellipsoid onto
// the sphere of radius F, and the hard-iron bias is the ellipsoid center.
func Derive(q Quadric, referenceField float64) (Calibration, error) {
	if referenceField <= 0 {
		return Calibration{}, fmt.Errorf("ellipsoid: reference field strength must be positive, got %g", referenceField)
	}
	geo, err := q.Geometry()
	if err != nil {
		return Calibration{}, err
	}

	var diag [3]float64
	for i, l := range geo.Eigvals {
		mu := l / -geo.K
		if mu <= 0 {
			return Calibration{}, ErrDegenerateGeometry
		}
		diag[i] = referenceField * math.Sqrt(mu)
	}

	var rd, a mat.Dense
	rd.Mul(geo.Rot, mat.NewDiagDense(3, diag[:]))
	a.Mul(&rd, geo.Rot.T())

	cal := Calibration{B: geo.Center, Field: referenceField}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cal.A[i][j] = a.At(i, j)
		}
	}
	return cal, nil
}
