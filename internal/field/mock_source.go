// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package field

import (
	"math/rand"
	"time"
)

// MockSource generates synthetic magnetometer samples on a distorted
// ellipsoid: uniformly random directions stretched by Axes, rotated by Rot
// and shifted by Center, with optional Gaussian noise and a fraction of
// gross outliers. It stands in for a live sensor in tests and demos.
type MockSource struct {
	Center      Vec3
	Axes        Vec3
	Rot         [3][3]float64 // orthonormal
	Noise       float64       // per-axis Gaussian sigma, µT
	OutlierFrac float64       // 0..1
	OutlierMag  float64       // extra offset magnitude for outliers, µT

	rnd *rand.Rand
}

// NewMockSource returns a source with plausible mid-latitude defaults:
// a mildly distorted ~50 µT sphere offset by a hard-iron bias.
func NewMockSource(seed int64) *MockSource {
	return &MockSource{
		Center:     Vec3{X: 12, Y: -6, Z: 3},
		Axes:       Vec3{X: 55, Y: 45, Z: 50},
		Rot:        [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		OutlierMag: 150,
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

func (m *MockSource) Next() (Sample, error) {
	u := m.unitVec()
	p := Vec3{X: m.Axes.X * u.X, Y: m.Axes.Y * u.Y, Z: m.Axes.Z * u.Z}
	p = Vec3{
		X: m.Rot[0][0]*p.X + m.Rot[0][1]*p.Y + m.Rot[0][2]*p.Z,
		Y: m.Rot[1][0]*p.X + m.Rot[1][1]*p.Y + m.Rot[1][2]*p.Z,
		Z: m.Rot[2][0]*p.X + m.Rot[2][1]*p.Y + m.Rot[2][2]*p.Z,
	}
	p = p.Add(m.Center)
	if m.Noise > 0 {
		p = p.Add(Vec3{
			X: m.rnd.NormFloat64() * m.Noise,
			Y: m.rnd.NormFloat64() * m.Noise,
			Z: m.rnd.NormFloat64() * m.Noise,
		})
	}
	if m.OutlierFrac > 0 && m.rnd.Float64() < m.OutlierFrac {
		p = p.Add(m.unitVec().Scale(m.OutlierMag))
	}
	return Sample{Vec3: p, Time: time.Now()}, nil
}

func (m *MockSource) unitVec() Vec3 {
	for {
		v := Vec3{X: m.rnd.NormFloat64(), Y: m.rnd.NormFloat64(), Z: m.rnd.NormFloat64()}
		if n := v.Norm(); n > 1e-6 {
			return v.Scale(1 / n)
		}
	}
}
