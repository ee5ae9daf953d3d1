// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

import "sort"

// Point is one study point: a grid cell with its population attributes and
// the signal fields computed (or cache-restored) for it so far.
type Point struct {
	LatIndex int32
	LonIndex int32

	Latitude  float64
	Longitude float64

	CountryKey   int32
	Population   int32
	Households   int32
	LandCoverKey int32
	ClutterKey   int32

	Fields []*Field
}

// Field is one signal sample at a study point: the contribution of one
// source at one time-percentage class.
type Field struct {
	SourceKey   SourceKey
	PercentTime PercentTimeKey

	Bearing        float64 // degrees true, source to point
	ReverseBearing float64 // degrees true, point to source
	Distance       float64 // kilometers
	FieldDB        float64 // dBu
	Status         int32

	// Cached marks a field restored from (or already persisted to) the
	// undesired-signal cache; append writes skip these.
	Cached bool

	// Secondaries carries per-transmitter samples for composite
	// contributors, in the parent source's transmitter-list order.
	Secondaries []SecondaryField
}

// SecondaryField is the per-secondary-transmitter breakdown of a composite
// source's field sample.
type SecondaryField struct {
	SourceKey      SourceKey
	Bearing        float64
	ReverseBearing float64
	Distance       float64
	FieldDB        float64
	Status         int32
}

// FindField returns the field for the given contributor and class, or nil.
func (p *Point) FindField(src SourceKey, pct PercentTimeKey) *Field {
	for _, f := range p.Fields {
		if f.SourceKey == src && f.PercentTime == pct {
			return f
		}
	}
	return nil
}

// InsertFieldIfAbsent adds f to the point unless a field with the same
// contributor and class already exists. It returns the resident field and
// whether the insert happened.
func (p *Point) InsertFieldIfAbsent(f *Field) (*Field, bool) {
	if existing := p.FindField(f.SourceKey, f.PercentTime); existing != nil {
		return existing, false
	}
	p.Fields = append(p.Fields, f)
	return f, true
}

type pointKey struct {
	lat int32
	lon int32
}

// Grid is the in-memory result container for a study run: study points
// keyed by cell indices. It is not safe for concurrent mutation; the
// engine runs grid operations on a single goroutine per process, and
// cross-process sharing happens only through the result cache files.
type Grid struct {
	points map[pointKey]*Point
}

// NewGrid returns an empty grid.
func NewGrid() *Grid {
	return &Grid{points: make(map[pointKey]*Point)}
}

// FindPoint returns the point at (latIndex, lonIndex), or nil.
func (g *Grid) FindPoint(latIndex, lonIndex int32) *Point {
	return g.points[pointKey{latIndex, lonIndex}]
}

// InsertPointIfAbsent adds p to the grid unless a point with the same cell
// indices already exists. It returns the resident point and whether the
// insert happened.
func (g *Grid) InsertPointIfAbsent(p *Point) (*Point, bool) {
	k := pointKey{p.LatIndex, p.LonIndex}
	if existing, ok := g.points[k]; ok {
		return existing, false
	}
	g.points[k] = p
	return p, true
}

// Len returns the number of points in the grid.
func (g *Grid) Len() int {
	return len(g.points)
}

// Points returns all points ordered south to north, then east to west.
// Cache writes iterate this ordering so that rewritten files are
// deterministic for a given grid state.
func (g *Grid) Points() []*Point {
	out := make([]*Point, 0, len(g.points))
	for _, p := range g.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LatIndex != out[j].LatIndex {
			return out[i].LatIndex < out[j].LatIndex
		}
		return out[i].LonIndex < out[j].LonIndex
	})
	return out
}
