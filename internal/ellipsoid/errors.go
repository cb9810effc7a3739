// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ellipsoid

import "errors"

// Failure reasons surfaced by the fitting pipeline. Ill-conditioned fits are
// absorbed per RANSAC iteration; the other three abort a calibration run.
var (
	ErrInsufficientData   = errors.New("ellipsoid: fewer than 9 usable samples")
	ErrIllConditioned     = errors.New("ellipsoid: least-squares system is ill-conditioned")
	ErrNoConsensus        = errors.New("ellipsoid: no candidate model reached consensus")
	ErrDegenerateGeometry = errors.New("ellipsoid: fitted quadric is not a bounded ellipsoid")
)
