// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/spectrumlab/propstudy/internal/study"
)

// On-disk format identity. The magic number discriminates the cache kind;
// the version covers every record layout in this file and bumps whenever
// any of them changes.
const (
	magicFingerprint  int32 = 0x50534650 // "PFSP"
	magicCoverage     int32 = 0x50534356 // "VCSP"
	magicContribution int32 = 0x50534644 // "DFSP"

	formatVersion int32 = 3
)

// byteOrder is the fixed byte order of every cache file. Cache files are
// shared between processes on one host, never shipped between
// architectures, but pinning the order keeps a file readable if that ever
// changes.
var byteOrder = binary.LittleEndian

// Size limits for self-describing blocks. Counts beyond these cannot come
// from a well-formed writer and are treated as corruption rather than
// honored as allocation sizes.
const (
	maxPatternSlices = 3600
	maxSlicePoints   = 3600
	maxContourPoints = 7200
	maxSecondaries   = 1024
)

// header opens every cache file. It is written once at the start of
// fingerprint and coverage files and rewritten at the start of the
// contribution file on every append, so the terrain flags there always
// reflect the most recent writer.
type header struct {
	Magic   int32
	Version int32

	// Terrain database generation the cached results were computed
	// against, and whether non-standard terrain was requested and
	// actually used.
	TerrainGenerationID int64
	TerrainRequested    int32
	TerrainUsed         int32
}

const headerSize = 24

// fingerprintRecord is the parameter snapshot for one source. Every field
// that feeds downstream computation appears here so that a change in any
// of them is caught even when modification counters have been tampered
// with or lost.
type fingerprintRecord struct {
	StudyModCount    int32
	SourceModCount   int32
	GeometryModCount int32

	SourceKey          int32
	FacilityID         int32
	Channel            int32
	CountryKey         int32
	ServiceKey         int32
	SignalTypeKey      int32
	FrequencyOffsetKey int32
	EmissionMaskKey    int32
	ServiceAreaMode    int32
	ServiceAreaKey     int32
	IsParent           int32
	SecondaryCount     int32

	Latitude            float64
	Longitude           float64
	HeightAMSL          float64
	ActualHAAT          float64
	PeakERP             float64
	HpatOrientation     float64
	VpatElectricalTilt  float64
	VpatMechanicalTilt  float64
	VpatTiltOrientation float64
	TimeDelay           float64
	ServiceAreaArg      float64
	ServiceAreaCL       float64
	DTSMaximumDistance  float64

	// Derived service-area geometry, copied back onto the live source on
	// a fresh load.
	HasBounds   int32
	BoundsSouth int32
	BoundsEast  int32
	BoundsNorth int32
	BoundsWest  int32
	CellArea    float64
	CellLatSize float64
	CellLonSize float64

	// Data block presence flags; absent blocks are simply not written.
	HasHorizontalPattern int32
	HasContourPattern    int32
	HasVerticalPattern   int32
	HasServiceContour    int32
}

// secondaryRecord is the abbreviated fingerprint for one secondary
// transmitter of a composite source (and for the reference facility).
// Geometry bounds and cell sizing are defined once at the composite level
// and omitted here.
type secondaryRecord struct {
	SourceModCount   int32
	GeometryModCount int32

	SourceKey          int32
	FacilityID         int32
	Channel            int32
	CountryKey         int32
	ServiceKey         int32
	SignalTypeKey      int32
	FrequencyOffsetKey int32
	EmissionMaskKey    int32

	Latitude            float64
	Longitude           float64
	HeightAMSL          float64
	ActualHAAT          float64
	PeakERP             float64
	HpatOrientation     float64
	VpatElectricalTilt  float64
	VpatMechanicalTilt  float64
	VpatTiltOrientation float64
	TimeDelay           float64

	HasHorizontalPattern int32
	HasContourPattern    int32
	HasVerticalPattern   int32
}

// cellRecord is one study point plus one signal sample in a cell cache
// file. The trailing checksum continues a file-wide rolling chain seeded
// per record by the contributing source's key; the checksum of the last
// record in a file is therefore a fingerprint of the file's entire record
// history, which is what the append-race watermark protocol relies on.
type cellRecord struct {
	LatIndex  int32
	LonIndex  int32
	Latitude  float64
	Longitude float64

	CountryKey   int32
	Population   int32
	Households   int32
	LandCoverKey int32
	ClutterKey   int32

	SourceKey      int32
	PercentTime    int32
	Bearing        float64
	ReverseBearing float64
	Distance       float64
	FieldDB        float64
	Status         int32
	SecondaryCount int32

	Checksum uint32
}

// secondaryCellRecord is the per-transmitter sample following a composite
// source's cell record, one per secondary in transmitter-list order. It
// participates in the same checksum chain; the checksum field must stay
// the final field so the chain tail is always the last 4 bytes on disk.
type secondaryCellRecord struct {
	SourceKey      int32
	Bearing        float64
	ReverseBearing float64
	Distance       float64
	FieldDB        float64
	Status         int32

	Checksum uint32
}

var (
	cellRecordSize          = binary.Size(cellRecord{})
	secondaryCellRecordSize = binary.Size(secondaryCellRecord{})
)

// chainChecksum folds one record into the rolling chain. The previous
// chain value is rotated before mixing so that permuting two records
// changes the result even when their field values are identical.
func chainChecksum(prev uint32, seed int32, words ...uint64) uint32 {
	sum := bits.RotateLeft32(prev, 1) ^ uint32(seed)
	for _, w := range words {
		sum = bits.RotateLeft32(sum, 5) ^ uint32(w) ^ uint32(w>>32)
	}
	return sum
}

// chain computes the checksum for r given the previous chain value. The
// subset of fields covered is fixed by the format version.
func (r *cellRecord) chain(prev uint32) uint32 {
	return chainChecksum(prev, r.SourceKey,
		uint64(uint32(r.LatIndex))|uint64(uint32(r.LonIndex))<<32,
		math.Float64bits(r.FieldDB),
		math.Float64bits(r.Distance),
		uint64(uint32(r.PercentTime))|uint64(uint32(r.Status))<<32,
	)
}

func (r *secondaryCellRecord) chain(prev uint32) uint32 {
	return chainChecksum(prev, r.SourceKey,
		math.Float64bits(r.FieldDB),
		math.Float64bits(r.Distance),
		uint64(uint32(r.Status)),
	)
}

// readFixed decodes one fixed-layout value, mapping any truncation to a
// short-read corruption error.
func readFixed(r io.Reader, v any, what string) error {
	if err := binary.Read(r, byteOrder, v); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: short read in %s", ErrCacheCorrupt, what)
		}
		return fmt.Errorf("read %s: %w", what, err)
	}
	return nil
}

// writeFixed encodes one fixed-layout value. Writing to an in-memory
// buffer cannot fail; errors surface when the buffer is flushed to disk.
func writeFixed(w io.Writer, v any) {
	// binary.Write only fails on writer error or a non-fixed type;
	// both are programming errors against a bytes.Buffer.
	if err := binary.Write(w, byteOrder, v); err != nil {
		panic(fmt.Sprintf("cache: encode %T: %v", v, err))
	}
}

// encodeHeader builds the file header from live session terrain state.
func encodeHeader(magic int32, terrain study.TerrainState) header {
	h := header{
		Magic:               magic,
		Version:             formatVersion,
		TerrainGenerationID: terrain.GenerationID,
	}
	if terrain.Requested {
		h.TerrainRequested = 1
	}
	if terrain.Used {
		h.TerrainUsed = 1
	}
	return h
}

// writePattern appends a fixed-length azimuth pattern block.
func writePattern(w io.Writer, p *[study.PatternSamples]float64) {
	writeFixed(w, p)
}

// readPattern reads a fixed-length azimuth pattern block.
func readPattern(r io.Reader, what string) (*[study.PatternSamples]float64, error) {
	var p [study.PatternSamples]float64
	if err := readFixed(r, &p, what); err != nil {
		return nil, err
	}
	return &p, nil
}

// writeMatrixPattern appends a variable-size vertical pattern block:
// slice count, then per slice its azimuth, point count, and points. No
// offsets are stored; readers rebuild slice structure from the counts.
func writeMatrixPattern(w io.Writer, m *study.MatrixPattern) {
	writeFixed(w, int32(len(m.Slices)))
	for i := range m.Slices {
		s := &m.Slices[i]
		writeFixed(w, s.Azimuth)
		writeFixed(w, int32(len(s.Points)))
		for _, pt := range s.Points {
			writeFixed(w, pt.Angle)
			writeFixed(w, pt.RelativeField)
		}
	}
}

// readMatrixPattern reads a variable-size vertical pattern block. Slice
// descriptors are recomputed from the declared counts; counts outside the
// format limits are corruption, not allocation requests.
func readMatrixPattern(r io.Reader) (*study.MatrixPattern, error) {
	var sliceCount int32
	if err := readFixed(r, &sliceCount, "matrix pattern slice count"); err != nil {
		return nil, err
	}
	if sliceCount < 1 || sliceCount > maxPatternSlices {
		return nil, fmt.Errorf("%w: matrix pattern slice count %d", ErrCacheCorrupt, sliceCount)
	}

	m := &study.MatrixPattern{Slices: make([]study.PatternSlice, sliceCount)}
	for i := range m.Slices {
		s := &m.Slices[i]
		if err := readFixed(r, &s.Azimuth, "matrix pattern azimuth"); err != nil {
			return nil, err
		}
		var pointCount int32
		if err := readFixed(r, &pointCount, "matrix pattern point count"); err != nil {
			return nil, err
		}
		if pointCount < 1 || pointCount > maxSlicePoints {
			return nil, fmt.Errorf("%w: matrix pattern point count %d", ErrCacheCorrupt, pointCount)
		}
		s.Points = make([]study.PatternPoint, pointCount)
		for j := range s.Points {
			if err := readFixed(r, &s.Points[j].Angle, "matrix pattern point"); err != nil {
				return nil, err
			}
			if err := readFixed(r, &s.Points[j].RelativeField, "matrix pattern point"); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// skipMatrixPattern advances past a matrix pattern block without building
// it, validating the declared counts as it goes. Used when the decoded
// pattern is already held by the session's pattern cache.
func skipMatrixPattern(r io.Reader) error {
	var sliceCount int32
	if err := readFixed(r, &sliceCount, "matrix pattern slice count"); err != nil {
		return err
	}
	if sliceCount < 1 || sliceCount > maxPatternSlices {
		return fmt.Errorf("%w: matrix pattern slice count %d", ErrCacheCorrupt, sliceCount)
	}
	for i := int32(0); i < sliceCount; i++ {
		var azimuth float64
		if err := readFixed(r, &azimuth, "matrix pattern azimuth"); err != nil {
			return err
		}
		var pointCount int32
		if err := readFixed(r, &pointCount, "matrix pattern point count"); err != nil {
			return err
		}
		if pointCount < 1 || pointCount > maxSlicePoints {
			return fmt.Errorf("%w: matrix pattern point count %d", ErrCacheCorrupt, pointCount)
		}
		if _, err := io.CopyN(io.Discard, r, int64(pointCount)*16); err != nil {
			return fmt.Errorf("%w: short read in matrix pattern points", ErrCacheCorrupt)
		}
	}
	return nil
}

// writeContour appends a variable-size contour block with a
// self-describing radial count.
func writeContour(w io.Writer, c *study.Contour) {
	writeFixed(w, c.Latitude)
	writeFixed(w, c.Longitude)
	writeFixed(w, int32(len(c.Distances)))
	writeFixed(w, c.Distances)
}

// readContour reads a variable-size contour block.
func readContour(r io.Reader) (*study.Contour, error) {
	c := &study.Contour{}
	if err := readFixed(r, &c.Latitude, "contour origin"); err != nil {
		return nil, err
	}
	if err := readFixed(r, &c.Longitude, "contour origin"); err != nil {
		return nil, err
	}
	var count int32
	if err := readFixed(r, &count, "contour point count"); err != nil {
		return nil, err
	}
	if count < 1 || count > maxContourPoints {
		return nil, fmt.Errorf("%w: contour point count %d", ErrCacheCorrupt, count)
	}
	c.Distances = make([]float64, count)
	if err := readFixed(r, c.Distances, "contour distances"); err != nil {
		return nil, err
	}
	return c, nil
}

// makeCellRecord builds the on-disk form of one point/field pair.
// SecondaryCount and Checksum are filled in by the writer.
func makeCellRecord(p *study.Point, f *study.Field) cellRecord {
	return cellRecord{
		LatIndex:  p.LatIndex,
		LonIndex:  p.LonIndex,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,

		CountryKey:   p.CountryKey,
		Population:   p.Population,
		Households:   p.Households,
		LandCoverKey: p.LandCoverKey,
		ClutterKey:   p.ClutterKey,

		SourceKey:      int32(f.SourceKey),
		PercentTime:    int32(f.PercentTime),
		Bearing:        f.Bearing,
		ReverseBearing: f.ReverseBearing,
		Distance:       f.Distance,
		FieldDB:        f.FieldDB,
		Status:         f.Status,
	}
}

// toPoint rebuilds the point identity carried by a cell record.
func (r *cellRecord) toPoint() *study.Point {
	return &study.Point{
		LatIndex:     r.LatIndex,
		LonIndex:     r.LonIndex,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		CountryKey:   r.CountryKey,
		Population:   r.Population,
		Households:   r.Households,
		LandCoverKey: r.LandCoverKey,
		ClutterKey:   r.ClutterKey,
	}
}

// toField rebuilds the signal sample carried by a cell record. Restored
// fields are born cached so append writes never re-persist them.
func (r *cellRecord) toField() *study.Field {
	return &study.Field{
		SourceKey:      study.SourceKey(r.SourceKey),
		PercentTime:    study.PercentTimeKey(r.PercentTime),
		Bearing:        r.Bearing,
		ReverseBearing: r.ReverseBearing,
		Distance:       r.Distance,
		FieldDB:        r.FieldDB,
		Status:         r.Status,
		Cached:         true,
	}
}

func makeSecondaryCellRecord(sf study.SecondaryField) secondaryCellRecord {
	return secondaryCellRecord{
		SourceKey:      int32(sf.SourceKey),
		Bearing:        sf.Bearing,
		ReverseBearing: sf.ReverseBearing,
		Distance:       sf.Distance,
		FieldDB:        sf.FieldDB,
		Status:         sf.Status,
	}
}

func (r *secondaryCellRecord) toSecondaryField() study.SecondaryField {
	return study.SecondaryField{
		SourceKey:      study.SourceKey(r.SourceKey),
		Bearing:        r.Bearing,
		ReverseBearing: r.ReverseBearing,
		Distance:       r.Distance,
		FieldDB:        r.FieldDB,
		Status:         r.Status,
	}
}

func boolFlag(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
