// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import (
	"math/rand"
	"time"

	"github.com/relabs-tech/magcal/internal/field"
)

// Estimator fits an ellipsoid to a magnetometer point cloud with RANSAC,
// tolerating disturbances from nearby ferrous objects and transient fields.
// Rand may be seeded for reproducible runs; when nil a time-seeded source is
// used.
type Estimator struct {
	Iterations      int
	InlierThreshold float64
	Rand            *rand.Rand
}

// Fit runs the configured number of RANSAC iterations over points and returns
// the quadric refit on the best inlier set, together with the inlier indices.
// Iterations whose minimal subset yields an ill-conditioned or degenerate
// candidate contribute nothing and are skipped. A winning inlier set smaller
// than MinPoints means no model had sufficient support: ErrNoConsensus.
func (e *Estimator) Fit(points []field.Vec3) (Quadric, []int, error) {
	if len(points) < MinPoints {
		return Quadric{}, nil, ErrInsufficientData
	}
	rnd := e.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var best []int
	subset := make([]field.Vec3, MinPoints)
	for it := 0; it < e.Iterations; it++ {
		for i, j := range rnd.Perm(len(points))[:MinPoints] {
			subset[i] = points[j]
		}
		cand, err := FitLS(subset)
		if err != nil {
			continue
		}
		geo, err := cand.Geometry()
		if err != nil {
			continue
		}
		// Strict > keeps the first-found candidate on ties, so a fixed seed
		// gives a fixed result.
		if inliers := e.score(points, geo); len(inliers) > len(best) {
			best = inliers
		}
	}

	if len(best) < MinPoints {
		return Quadric{}, nil, ErrNoConsensus
	}

	support := make([]field.Vec3, len(best))
	for i, j := range best {
		support[i] = points[j]
	}
	refined, err := FitLS(support)
	if err != nil {
		return Quadric{}, nil, err
	}
	return refined, best, nil
}

// score admits every sample whose distance to its ray-ellipsoid surface point
// is within the inlier threshold.
func (e *Estimator) score(points []field.Vec3, geo *Geometry) []int {
	var inliers []int
	for i, p := range points {
		surf, ok := Intersect(p, geo.Center, geo.Q, field.Vec3{}, geo.K)
		if !ok {
			continue
		}
		if p.Sub(surf).Norm() < e.InlierThreshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}
