// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import "math"

// Cached parameter values are round-tripped through storage and
// independently recomputed by other process instances, so bit-identical
// comparison is too strict; a fixed numeric epsilon is unsound across
// magnitudes. Comparing the integer distance between bit patterns (units
// in the last place) is scale-free and cheap, so that is the staleness
// test everywhere a floating point parameter is checked.
const (
	ulpWindow64 int64 = 16
	ulpWindow32 int32 = 4
)

// diffFloat64 reports whether a and b differ by more than the 64-bit ULP
// window. NaN never compares equal to anything, including itself.
func diffFloat64(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	ia := orderedBits64(a)
	ib := orderedBits64(b)
	d := ia - ib
	// A distance of exactly 2^63 (sign-flipped values such as 2.0 and
	// -2.0) wraps to math.MinInt64, which negation cannot make positive.
	if d == math.MinInt64 {
		return true
	}
	if d < 0 {
		d = -d
	}
	return d > ulpWindow64
}

// diffFloat32 is the single-precision analogue of diffFloat64.
func diffFloat32(a, b float32) bool {
	if a != a || b != b { // NaN
		return true
	}
	ia := orderedBits32(a)
	ib := orderedBits32(b)
	d := ia - ib
	if d < 0 {
		d = -d
	}
	return d > int64(ulpWindow32)
}

// orderedBits64 maps a float64 onto a signed integer scale where
// adjacent representable values are adjacent integers across the zero
// boundary. Negative floats have their bit pattern mirrored so that the
// ordering is monotonic; without this, -0.0 and tiny negatives would sit
// numerically far from their positive neighbors.
func orderedBits64(f float64) int64 {
	b := int64(math.Float64bits(f))
	if b < 0 {
		b = math.MinInt64 - b
	}
	return b
}

func orderedBits32(f float32) int64 {
	b := int32(math.Float32bits(f))
	if b < 0 {
		b = math.MinInt32 - b
	}
	return int64(b)
}
