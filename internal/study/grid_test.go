// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

import "testing"

func TestGridInsertAndFind(t *testing.T) {
	g := NewGrid()

	p := &Point{LatIndex: 100, LonIndex: 200, Latitude: 40.5, Longitude: -88.2}
	got, inserted := g.InsertPointIfAbsent(p)
	if !inserted {
		t.Fatal("expected first insert to succeed")
	}
	if got != p {
		t.Fatal("expected insert to return the inserted point")
	}

	dup := &Point{LatIndex: 100, LonIndex: 200}
	got, inserted = g.InsertPointIfAbsent(dup)
	if inserted {
		t.Error("expected duplicate insert to be refused")
	}
	if got != p {
		t.Error("expected duplicate insert to return the resident point")
	}

	if g.FindPoint(100, 200) != p {
		t.Error("FindPoint did not return inserted point")
	}
	if g.FindPoint(100, 201) != nil {
		t.Error("FindPoint returned a point for an empty cell")
	}
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestGridPointsOrdering(t *testing.T) {
	g := NewGrid()
	// Insert out of order; Points() must come back south-to-north, then
	// east-to-west within a row.
	for _, idx := range [][2]int32{{5, 9}, {3, 2}, {5, 1}, {3, 8}, {4, 4}} {
		g.InsertPointIfAbsent(&Point{LatIndex: idx[0], LonIndex: idx[1]})
	}

	want := [][2]int32{{3, 2}, {3, 8}, {4, 4}, {5, 1}, {5, 9}}
	pts := g.Points()
	if len(pts) != len(want) {
		t.Fatalf("Points() returned %d points, want %d", len(pts), len(want))
	}
	for i, p := range pts {
		if p.LatIndex != want[i][0] || p.LonIndex != want[i][1] {
			t.Errorf("Points()[%d] = (%d,%d), want (%d,%d)",
				i, p.LatIndex, p.LonIndex, want[i][0], want[i][1])
		}
	}
}

func TestPointFieldInsert(t *testing.T) {
	p := &Point{LatIndex: 1, LonIndex: 1}

	f := &Field{SourceKey: 7, PercentTime: 50, FieldDB: 41.0}
	if _, inserted := p.InsertFieldIfAbsent(f); !inserted {
		t.Fatal("expected first field insert to succeed")
	}

	// Same contributor, different class: distinct field.
	f10 := &Field{SourceKey: 7, PercentTime: 10, FieldDB: 55.0}
	if _, inserted := p.InsertFieldIfAbsent(f10); !inserted {
		t.Error("expected different-class field insert to succeed")
	}

	// Same contributor and class: refused.
	dup := &Field{SourceKey: 7, PercentTime: 50, FieldDB: 99.0}
	resident, inserted := p.InsertFieldIfAbsent(dup)
	if inserted {
		t.Error("expected duplicate field insert to be refused")
	}
	if resident != f {
		t.Error("expected duplicate insert to return the resident field")
	}

	if p.FindField(7, 50) != f {
		t.Error("FindField(7, 50) did not return original field")
	}
	if p.FindField(8, 50) != nil {
		t.Error("FindField returned a field for an unknown contributor")
	}
}

func TestGeoBounds(t *testing.T) {
	b := GeoBounds{SouthLatIndex: 10, EastLonIndex: 20, NorthLatIndex: 15, WestLonIndex: 30}

	if b.IsEmpty() {
		t.Fatal("bounds should not be empty")
	}
	if !b.Contains(10, 20) {
		t.Error("south-east corner should be inside (inclusive)")
	}
	if b.Contains(15, 20) {
		t.Error("north edge should be outside (exclusive)")
	}
	if b.Contains(12, 30) {
		t.Error("west edge should be outside (exclusive)")
	}
	if b.Contains(9, 25) {
		t.Error("cell south of bounds should be outside")
	}

	if !(GeoBounds{}).IsEmpty() {
		t.Error("zero bounds should be empty")
	}

	u := b.Union(GeoBounds{SouthLatIndex: 5, EastLonIndex: 25, NorthLatIndex: 12, WestLonIndex: 40})
	want := GeoBounds{SouthLatIndex: 5, EastLonIndex: 20, NorthLatIndex: 15, WestLonIndex: 40}
	if u != want {
		t.Errorf("Union = %+v, want %+v", u, want)
	}
	if got := b.Union(GeoBounds{}); got != b {
		t.Errorf("Union with empty = %+v, want %+v", got, b)
	}
}

func TestTerrainDelta(t *testing.T) {
	ts := TerrainState{GenerationID: 3}

	ts.Apply(TerrainDelta{})
	if ts.Used {
		t.Error("empty delta must not set Used")
	}

	ts.Apply(TerrainDelta{UsedNonStandard: true})
	if !ts.Used {
		t.Error("delta with UsedNonStandard must set Used")
	}

	// Used is sticky.
	ts.Apply(TerrainDelta{})
	if !ts.Used {
		t.Error("Used must remain set once applied")
	}
}
