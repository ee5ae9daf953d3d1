// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

// GeoBounds is a rectangle of study-grid cell indices. Latitude indices
// grow northward, longitude indices grow westward (matching the convention
// of negative-west longitudes used throughout the engine). A bounds value
// is inclusive on the south and east edges and exclusive on the north and
// west edges.
type GeoBounds struct {
	SouthLatIndex int32
	EastLonIndex  int32
	NorthLatIndex int32
	WestLonIndex  int32
}

// IsEmpty reports whether the bounds contain no cells.
func (b GeoBounds) IsEmpty() bool {
	return b.NorthLatIndex <= b.SouthLatIndex || b.WestLonIndex <= b.EastLonIndex
}

// Contains reports whether the cell at (latIndex, lonIndex) lies inside
// the bounds.
func (b GeoBounds) Contains(latIndex, lonIndex int32) bool {
	return latIndex >= b.SouthLatIndex && latIndex < b.NorthLatIndex &&
		lonIndex >= b.EastLonIndex && lonIndex < b.WestLonIndex
}

// Union returns the smallest bounds containing both b and o. An empty
// operand contributes nothing.
func (b GeoBounds) Union(o GeoBounds) GeoBounds {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	u := b
	if o.SouthLatIndex < u.SouthLatIndex {
		u.SouthLatIndex = o.SouthLatIndex
	}
	if o.EastLonIndex < u.EastLonIndex {
		u.EastLonIndex = o.EastLonIndex
	}
	if o.NorthLatIndex > u.NorthLatIndex {
		u.NorthLatIndex = o.NorthLatIndex
	}
	if o.WestLonIndex > u.WestLonIndex {
		u.WestLonIndex = o.WestLonIndex
	}
	return u
}
