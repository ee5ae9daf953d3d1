// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/spectrumlab/propstudy/internal/study"
)

func TestHeaderSize(t *testing.T) {
	var buf bytes.Buffer
	writeFixed(&buf, header{})
	if buf.Len() != headerSize {
		t.Fatalf("encoded header is %d bytes, want %d", buf.Len(), headerSize)
	}
}

func TestReadFixedShortRead(t *testing.T) {
	var rec cellRecord
	err := readFixed(bytes.NewReader(make([]byte, cellRecordSize-1)), &rec, "cell record")
	if !errors.Is(err, ErrCacheCorrupt) {
		t.Fatalf("short read err = %v, want ErrCacheCorrupt", err)
	}
}

func TestChainChecksumOrderSensitive(t *testing.T) {
	a := cellRecord{LatIndex: 1010, LonIndex: 2020, SourceKey: 9, FieldDB: 54.2, Distance: 88.1}
	b := cellRecord{LatIndex: 1011, LonIndex: 2020, SourceKey: 9, FieldDB: 54.2, Distance: 88.1}

	ab := b.chain(a.chain(0))
	ba := a.chain(b.chain(0))
	if ab == ba {
		t.Error("chain value identical after permuting records")
	}
}

func TestChainChecksumDeterministic(t *testing.T) {
	rec := cellRecord{LatIndex: 1010, LonIndex: 2020, SourceKey: 9,
		PercentTime: 50, FieldDB: 54.2, Distance: 88.1, Status: 1}
	if rec.chain(7) != rec.chain(7) {
		t.Error("chain not deterministic")
	}
	if rec.chain(7) == rec.chain(8) {
		t.Error("chain ignores previous value")
	}
	changed := rec
	changed.FieldDB += 0.5
	if changed.chain(7) == rec.chain(7) {
		t.Error("chain ignores field strength")
	}
}

// The append-race watermark protocol reads the last 4 bytes of the file
// as the chain tail, which requires the checksum to be the final encoded
// field of both cell record layouts.
func TestChecksumIsTrailingField(t *testing.T) {
	rec := cellRecord{SourceKey: 9, FieldDB: 54.2}
	rec.Checksum = rec.chain(0)
	var buf bytes.Buffer
	writeFixed(&buf, rec)
	got := byteOrder.Uint32(buf.Bytes()[buf.Len()-4:])
	if got != rec.Checksum {
		t.Errorf("trailing bytes decode to %#x, want checksum %#x", got, rec.Checksum)
	}

	sub := secondaryCellRecord{SourceKey: 3, FieldDB: 41.0}
	sub.Checksum = sub.chain(rec.Checksum)
	buf.Reset()
	writeFixed(&buf, sub)
	got = byteOrder.Uint32(buf.Bytes()[buf.Len()-4:])
	if got != sub.Checksum {
		t.Errorf("trailing bytes decode to %#x, want checksum %#x", got, sub.Checksum)
	}
}

func TestPatternRoundTrip(t *testing.T) {
	var p [study.PatternSamples]float64
	for i := range p {
		p[i] = float64(i) / study.PatternSamples
	}
	var buf bytes.Buffer
	writePattern(&buf, &p)

	got, err := readPattern(&buf, "horizontal pattern")
	if err != nil {
		t.Fatalf("readPattern: %v", err)
	}
	if *got != p {
		t.Error("pattern changed across round trip")
	}
}

func TestMatrixPatternRoundTrip(t *testing.T) {
	m := testMatrixPattern()
	var buf bytes.Buffer
	writeMatrixPattern(&buf, m)

	got, err := readMatrixPattern(&buf)
	if err != nil {
		t.Fatalf("readMatrixPattern: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Error("matrix pattern changed across round trip")
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left unread", buf.Len())
	}
}

func TestSkipMatrixPatternConsumesBlock(t *testing.T) {
	var buf bytes.Buffer
	writeMatrixPattern(&buf, testMatrixPattern())
	writeFixed(&buf, int32(12345))

	if err := skipMatrixPattern(&buf); err != nil {
		t.Fatalf("skipMatrixPattern: %v", err)
	}
	var sentinel int32
	if err := readFixed(&buf, &sentinel, "sentinel"); err != nil {
		t.Fatalf("read sentinel: %v", err)
	}
	if sentinel != 12345 {
		t.Errorf("skip left reader at wrong offset, sentinel = %d", sentinel)
	}
}

func TestMatrixPatternBadCounts(t *testing.T) {
	for _, count := range []int32{0, -1, maxPatternSlices + 1} {
		var buf bytes.Buffer
		writeFixed(&buf, count)
		if _, err := readMatrixPattern(&buf); !errors.Is(err, ErrCacheCorrupt) {
			t.Errorf("slice count %d: err = %v, want ErrCacheCorrupt", count, err)
		}
	}

	// Bad point count inside an otherwise plausible block.
	var buf bytes.Buffer
	writeFixed(&buf, int32(1))
	writeFixed(&buf, float64(90))
	writeFixed(&buf, int32(maxSlicePoints+1))
	if _, err := readMatrixPattern(&buf); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("oversized point count: err = %v, want ErrCacheCorrupt", err)
	}
}

func TestContourRoundTrip(t *testing.T) {
	c := &study.Contour{Latitude: 42.36, Longitude: -83.05, Distances: make([]float64, 360)}
	for i := range c.Distances {
		c.Distances[i] = 60 + float64(i%15)
	}
	var buf bytes.Buffer
	writeContour(&buf, c)

	got, err := readContour(&buf)
	if err != nil {
		t.Fatalf("readContour: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Error("contour changed across round trip")
	}
}

func TestContourBadCount(t *testing.T) {
	var buf bytes.Buffer
	writeFixed(&buf, float64(42))
	writeFixed(&buf, float64(-83))
	writeFixed(&buf, int32(maxContourPoints+1))
	if _, err := readContour(&buf); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("oversized contour: err = %v, want ErrCacheCorrupt", err)
	}
}

func TestCellRecordFieldRoundTrip(t *testing.T) {
	p := &study.Point{LatIndex: 1010, LonIndex: 2020, Latitude: 42.1, Longitude: -83.2,
		CountryKey: 1, Population: 1500, Households: 600, LandCoverKey: 4, ClutterKey: 2}
	f := &study.Field{SourceKey: 9, PercentTime: 50, Bearing: 10.5, ReverseBearing: 190.5,
		Distance: 88.1, FieldDB: 54.2, Status: 1}

	rec := makeCellRecord(p, f)
	gotP := rec.toPoint()
	if gotP.LatIndex != p.LatIndex || gotP.Population != p.Population || gotP.ClutterKey != p.ClutterKey {
		t.Error("point identity changed across record round trip")
	}
	gotF := rec.toField()
	if gotF.SourceKey != f.SourceKey || gotF.PercentTime != f.PercentTime || gotF.FieldDB != f.FieldDB {
		t.Error("field sample changed across record round trip")
	}
	if !gotF.Cached {
		t.Error("restored field not marked cached")
	}
}
