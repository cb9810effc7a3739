// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geomag

import (
	"math"
	"time"
)

// WMM2025 degree-1 (tilted dipole) coefficients in nT and their secular
// variation in nT/year.
const (
	wmmEpoch = 2025.0
	g10Base  = -29351.8
	g11Base  = -1410.8
	h11Base  = 4545.4
	g10Dot   = 12.0
	g11Dot   = 9.7
	h11Dot   = -21.5
)

// FieldStrength returns the geomagnetic field magnitude in µT at the given
// latitude/longitude (decimal degrees) and time, from the WMM degree-1 dipole
// approximation at the Earth's surface:
//
//	B = B₀·√(1 + 3·cos²θ)
//
// with θ the geomagnetic colatitude and B₀ the equatorial dipole strength.
// Accurate to a few µT, which is plenty for scaling a soft-iron correction.
func FieldStrength(latDeg, lonDeg float64, t time.Time) float64 {
	g10, g11, h11 := coeffs(t)
	b0 := math.Sqrt(g10*g10+g11*g11+h11*h11) / 1000 // nT → µT

	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	rhat := [3]float64{math.Cos(lat) * math.Cos(lon), math.Cos(lat) * math.Sin(lon), math.Sin(lat)}
	m := dipoleAxis(g10, g11, h11)

	cosTheta := rhat[0]*m[0] + rhat[1]*m[1] + rhat[2]*m[2]
	return b0 * math.Sqrt(1+3*cosTheta*cosTheta)
}

// DipoleAxisLatLon returns the latitude/longitude (decimal degrees) of the
// north geomagnetic pole at the given time.
func DipoleAxisLatLon(t time.Time) (latDeg, lonDeg float64) {
	m := dipoleAxis(coeffs(t))
	return math.Asin(m[2]) * 180 / math.Pi, math.Atan2(m[1], m[0]) * 180 / math.Pi
}

// dipoleAxis is the unit north-pointing dipole axis in Earth-fixed
// coordinates (x toward 0°E on the equator, z toward the north pole).
func dipoleAxis(g10, g11, h11 float64) [3]float64 {
	v := [3]float64{-g11, -h11, -g10}
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func coeffs(t time.Time) (g10, g11, h11 float64) {
	delta := decimalYear(t.UTC()) - wmmEpoch
	return g10Base + g10Dot*delta, g11Base + g11Dot*delta, h11Base + h11Dot*delta
}

func decimalYear(t time.Time) float64 {
	y := t.Year()
	start := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(y+1, 1, 1, 0, 0, 0, 0, time.UTC)
	elapsed := t.Sub(start)
	duration := end.Sub(start)
	if duration <= 0 {
		return float64(y)
	}
	return float64(y) + float64(elapsed)/float64(duration)
}
