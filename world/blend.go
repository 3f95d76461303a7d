// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package world

import "time"

// teleportThreshold is the squared distance above which an unsequenced
// vector is treated as noise rather than motion. Legitimate per-tick
// motion is well below one unit.
const teleportThreshold = 1.0

// Tuning holds the blend constants for extrapolated motion.
type Tuning struct {
	// FrameInterval is the render frame period.
	FrameInterval time.Duration

	// ExtrapolationFrames is how many frames of elapsed time bring the
	// blend to full weight.
	ExtrapolationFrames int

	// ExtrapolationWeight scales the blend weight; 0 disables
	// blending, 1 lets a fully-aged update replace the prior value.
	ExtrapolationWeight float64
}

// DefaultTuning matches the defaults of lib/config.
func DefaultTuning() Tuning {
	return Tuning{
		FrameInterval:       16 * time.Millisecond,
		ExtrapolationFrames: 4,
		ExtrapolationWeight: 0.5,
	}
}

// Weight returns min(elapsed / (FrameInterval × ExtrapolationFrames), 1)
// × ExtrapolationWeight. Non-positive elapsed time yields 0.
func (t Tuning) Weight(elapsed time.Duration) float64 {
	window := t.FrameInterval * time.Duration(max(t.ExtrapolationFrames, 1))
	if elapsed <= 0 || window <= 0 {
		return 0
	}
	ratio := min(float64(elapsed)/float64(window), 1)
	return ratio * t.ExtrapolationWeight
}

// Blend merges an unsequenced vector into the prior one. When the jump
// from prior to incoming exceeds the teleport threshold the incoming
// vector is discarded and Blend returns (prior, false).
func Blend(prior, incoming Vector, weight float64) (Vector, bool) {
	if incoming.Sub(prior).LengthSquared() > teleportThreshold {
		return prior, false
	}
	return prior.Lerp(incoming, weight), true
}
