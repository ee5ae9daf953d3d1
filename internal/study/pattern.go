// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

// MatrixPattern is a variable-size vertical antenna pattern: a set of
// azimuth slices, each carrying its own depression-angle/relative-field
// point list. Slice and point layout is always rebuilt from declared
// counts when a pattern is decoded; nothing in the in-memory form refers
// back to a serialized position.
type MatrixPattern struct {
	Slices []PatternSlice
}

// PatternSlice is the vertical pattern for one azimuth.
type PatternSlice struct {
	Azimuth float64 // degrees true
	Points  []PatternPoint
}

// PatternPoint is one sample of a vertical pattern slice.
type PatternPoint struct {
	Angle         float64 // degrees of depression, negative above horizontal
	RelativeField float64 // 0..1
}

// PointCount returns the total number of pattern points across all slices.
func (m *MatrixPattern) PointCount() int {
	n := 0
	for i := range m.Slices {
		n += len(m.Slices[i].Points)
	}
	return n
}

// Contour is a service contour: a distance from the source for each of a
// self-describing number of evenly spaced radials, plus the point the
// radials emanate from.
type Contour struct {
	Latitude  float64
	Longitude float64
	Distances []float64 // kilometers, one per radial
}
