// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

// SourceKey identifies one transmitting source within a study.
type SourceKey int32

// PercentTimeKey identifies the time-percentage class of a field sample,
// e.g. F(50,50) service curves versus F(50,10) interference curves.
type PercentTimeKey int32

// Field status codes stored with every computed sample.
const (
	FieldStatusOK          int32 = 0
	FieldStatusNoTerrain   int32 = 1
	FieldStatusOffPattern  int32 = 2
	FieldStatusOutOfRange  int32 = 3
	FieldStatusBeyondLimit int32 = 4
)

// GridMode selects how the study grid is laid out, which in turn decides
// how undesired-signal cache files are named. In local-grid mode each
// desired source has its own grid, so an undesired source's contributions
// are cached per desired source; in global-grid mode one file per
// undesired source covers the whole study.
type GridMode int32

const (
	GridGlobal GridMode = iota
	GridLocal
)

// Source is one transmitting facility under study. All parameter fields
// are treated as immutable for the duration of a run (the external study
// lock guarantees a consistent snapshot); the derived and bookkeeping
// fields below the marker comments are mutated by the engine and by the
// result cache.
//
// A composite (DTS) source has IsParent set, a Reference facility, and an
// ordered Secondaries list. List position is identity: cached results for
// a composite source are only valid against the exact same ordering.
type Source struct {
	Key        SourceKey
	FacilityID int32
	Channel    int32
	CountryKey int32
	ServiceKey int32

	SignalTypeKey      int32
	FrequencyOffsetKey int32
	EmissionMaskKey    int32

	Latitude   float64 // degrees north, NAD83
	Longitude  float64 // degrees west
	HeightAMSL float64 // meters
	ActualHAAT float64 // meters
	PeakERP    float64 // dBk

	HpatOrientation     float64 // degrees true
	VpatElectricalTilt  float64 // degrees of depression
	VpatMechanicalTilt  float64
	VpatTiltOrientation float64

	// DTS parent parameters; TimeDelay is per-secondary.
	IsParent  bool
	TimeDelay float64 // microseconds, secondary transmitters only

	ServiceAreaMode    int32
	ServiceAreaArg     float64
	ServiceAreaCL      float64 // contour level, dBu
	ServiceAreaKey     int32
	DTSMaximumDistance float64 // kilometers, parent only

	// Modification counters. ModCount increments whenever any parameter
	// above changes; ServiceAreaModCount increments when the service-area
	// geometry is re-derived. The study-level counter lives on the session.
	ModCount            int32
	ServiceAreaModCount int32

	// Derived service-area geometry, restored from cache on a fresh hit.
	HasBounds   bool
	Bounds      GeoBounds
	CellArea    float64 // square kilometers
	CellLatSize float64 // degrees
	CellLonSize float64

	// Attached data blocks; nil means the source does not carry that block.
	HorizontalPattern *[PatternSamples]float64
	ContourPattern    *[PatternSamples]float64
	VerticalPattern   *MatrixPattern
	ServiceContour    *Contour

	// Composite structure, nil/empty for ordinary sources.
	Reference   *Source
	Secondaries []*Source

	// Engine bookkeeping, not part of the cached parameter snapshot.
	IsCached    bool // a usable fingerprint cache exists for this source
	NeedsUpdate bool // caller already knows cached state is invalid
}

// PatternSamples is the sample count of fixed-length azimuth patterns:
// one relative-field value per degree.
const PatternSamples = 360

// HasCoverageHint reports whether the source looks eligible for a complete
// coverage cache probe: it must have derived bounds and a usable
// fingerprint.
func (s *Source) HasCoverageHint() bool {
	return s.IsCached && s.HasBounds
}

// CountSecondaries returns the number of secondary transmitters, zero for
// ordinary sources.
func (s *Source) CountSecondaries() int {
	return len(s.Secondaries)
}
