// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"math"
	"testing"
)

// nudge64 moves f by n representable steps toward +Inf (or -Inf for
// negative n).
func nudge64(f float64, n int) float64 {
	to := math.Inf(1)
	if n < 0 {
		to = math.Inf(-1)
		n = -n
	}
	for i := 0; i < n; i++ {
		f = math.Nextafter(f, to)
	}
	return f
}

func nudge32(f float32, n int) float32 {
	to := float32(math.Inf(1))
	if n < 0 {
		to = float32(math.Inf(-1))
		n = -n
	}
	for i := 0; i < n; i++ {
		f = math.Nextafter32(f, to)
	}
	return f
}

func TestDiffFloat64Window(t *testing.T) {
	bases := []float64{0, 1, -1, 42.3584, -83.0507, 1e-300, 1e300}
	for _, base := range bases {
		if diffFloat64(base, base) {
			t.Errorf("diffFloat64(%g, %g) = true for identical values", base, base)
		}
		if diffFloat64(base, nudge64(base, int(ulpWindow64))) {
			t.Errorf("%g: %d ulps apart reported different", base, ulpWindow64)
		}
		if !diffFloat64(base, nudge64(base, int(ulpWindow64)+1)) {
			t.Errorf("%g: %d ulps apart reported same", base, ulpWindow64+1)
		}
		if diffFloat64(base, nudge64(base, -int(ulpWindow64))) {
			t.Errorf("%g: %d ulps below reported different", base, ulpWindow64)
		}
	}
}

func TestDiffFloat64ZeroBoundary(t *testing.T) {
	// The window must span the sign boundary: values a few steps either
	// side of zero are neighbors on the ordered scale.
	a := nudge64(0, -3)
	b := nudge64(0, 3)
	if diffFloat64(a, b) {
		t.Errorf("diffFloat64(%g, %g) = true across zero", a, b)
	}
	if diffFloat64(math.Copysign(0, -1), 0) {
		t.Error("diffFloat64(-0, +0) = true")
	}
}

func TestDiffFloat64NaN(t *testing.T) {
	nan := math.NaN()
	if !diffFloat64(nan, nan) {
		t.Error("NaN compared equal to itself")
	}
	if !diffFloat64(nan, 1) || !diffFloat64(1, nan) {
		t.Error("NaN compared equal to a number")
	}
}

func TestDiffFloat64FarValues(t *testing.T) {
	if !diffFloat64(1, 2) {
		t.Error("1 and 2 reported within window")
	}
	if !diffFloat64(256.4, 256.5) {
		t.Error("256.4 and 256.5 reported within window")
	}
	if !diffFloat64(1, -1) {
		t.Error("1 and -1 reported within window")
	}
}

func TestDiffFloat64SignFlip(t *testing.T) {
	// 2.0 and -2.0 sit exactly 2^63 apart on the ordered scale, so the
	// raw distance wraps to math.MinInt64; it must still read as
	// different.
	if !diffFloat64(2.0, -2.0) {
		t.Error("diffFloat64(2, -2) = false")
	}
	if !diffFloat64(-2.0, 2.0) {
		t.Error("diffFloat64(-2, 2) = false")
	}
	if !diffFloat64(0.5, -0.5) || !diffFloat64(-1e300, 1e300) {
		t.Error("sign-flipped values reported within window")
	}
	if !diffFloat32(2.0, -2.0) || !diffFloat32(-2.0, 2.0) {
		t.Error("diffFloat32 sign flip reported within window")
	}
}

func TestDiffFloat32Window(t *testing.T) {
	bases := []float32{0, 1, -1, 98.7, -0.25}
	for _, base := range bases {
		if diffFloat32(base, base) {
			t.Errorf("diffFloat32(%g, %g) = true for identical values", base, base)
		}
		if diffFloat32(base, nudge32(base, int(ulpWindow32))) {
			t.Errorf("%g: %d ulps apart reported different", base, ulpWindow32)
		}
		if !diffFloat32(base, nudge32(base, int(ulpWindow32)+1)) {
			t.Errorf("%g: %d ulps apart reported same", base, ulpWindow32+1)
		}
	}
	nan := float32(math.NaN())
	if !diffFloat32(nan, nan) {
		t.Error("NaN compared equal to itself")
	}
}
