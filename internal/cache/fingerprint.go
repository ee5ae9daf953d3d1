// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spectrumlab/propstudy/internal/metrics"
	"github.com/spectrumlab/propstudy/internal/study"
)

// errSoftStale classifies routine invalidation internally; it never
// escapes the package.
var errSoftStale = errors.New("soft stale")

// LoadSource validates the fingerprint cache for a source against its
// live parameters and, when everything matches, restores the derived
// geometry and attached data blocks onto the source and marks it cached.
//
// The returned TerrainDelta reports whether the cached results depended
// on non-standard terrain; the caller applies it to the run's terrain
// state. A non-nil error is returned only for fatal inconsistency: cached
// parameters contradicting live values even though every modification
// counter matched, which means the external single-writer contract was
// violated. All other failures resolve to a Status, with stale or corrupt
// cache files already deleted.
func (s *Session) LoadSource(src *study.Source) (Status, study.TerrainDelta, error) {
	var none study.TerrainDelta

	// Routine misses: the caller already knows this source needs
	// recomputation, or the run started against modified study inputs.
	if src.NeedsUpdate {
		metrics.RecordLoad("fingerprint", "absent")
		return StatusAbsent, none, nil
	}
	if s.locks.IsFreshRun() {
		if err := s.DiscardSource(src.Key); err != nil {
			s.log.Warn().Err(err).Int32("source", int32(src.Key)).
				Msg("fresh-run cache discard incomplete")
		}
		s.patterns.remove(src.Key)
		metrics.RecordLoad("fingerprint", "absent")
		return StatusAbsent, none, nil
	}

	anchor, err := s.anchorShared(src.Key)
	if err != nil {
		if !errors.Is(err, ErrNotCached) {
			s.log.Debug().Err(err).Int32("source", int32(src.Key)).
				Msg("fingerprint cache unavailable")
		}
		metrics.RecordLoad("fingerprint", "absent")
		return StatusAbsent, none, nil
	}
	defer anchor.Close()

	status, delta, err := s.loadSourceLocked(bufio.NewReader(anchor.File()), src)
	switch {
	case err == nil:
		return status, delta, nil

	case errors.Is(err, errSoftStale):
		s.discardStale(src)
		metrics.RecordLoad("fingerprint", "stale")
		return StatusStale, none, nil

	case errors.Is(err, ErrCacheInconsistent):
		// Counters matched but parameters differ: either the external
		// locking protocol was violated or the data was tampered with.
		s.log.Error().Err(err).Int32("source", int32(src.Key)).
			Msg("fingerprint contradicts live source")
		s.discardStale(src)
		metrics.RecordLoad("fingerprint", "stale")
		return StatusStale, none, err

	default:
		// Hard corruption: short read, bad magic, bad block counts,
		// broken sub-record sequence.
		s.log.Error().Err(err).Int32("source", int32(src.Key)).
			Msg("fingerprint cache corrupt")
		metrics.RecordCorruption("fingerprint", corruptionCause(err))
		s.discardStale(src)
		metrics.RecordLoad("fingerprint", "corrupt")
		return StatusStale, none, nil
	}
}

// discardStale removes a source's cache family after any invalidation.
// The shared anchor is still held; unlinking under it is safe because
// racing readers keep their own open descriptors.
func (s *Session) discardStale(src *study.Source) {
	if err := s.removeFamily(src.Key); err != nil {
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).
			Msg("stale cache removal incomplete")
	}
	s.patterns.remove(src.Key)
	src.IsCached = false
}

// loadSourceLocked does the header, record, block, and composite reads
// under the shared anchor. Error classification: errSoftStale for routine
// invalidation, ErrCacheInconsistent for post-counter parameter
// mismatches, anything else is hard corruption.
func (s *Session) loadSourceLocked(r io.Reader, src *study.Source) (Status, study.TerrainDelta, error) {
	var none study.TerrainDelta

	var hdr header
	if err := readFixed(r, &hdr, "fingerprint header"); err != nil {
		return StatusStale, none, err
	}
	if hdr.Magic != magicFingerprint {
		return StatusStale, none, fmt.Errorf("%w: fingerprint magic %#x", ErrCacheCorrupt, hdr.Magic)
	}
	if hdr.Version != formatVersion {
		s.log.Debug().Int32("source", int32(src.Key)).
			Int32("version", hdr.Version).Msg("fingerprint format version changed")
		return StatusStale, none, errSoftStale
	}

	// Terrain generation: a flipped "requested" flag always invalidates;
	// when the flags agree, the generation id must too.
	requested := hdr.TerrainRequested != 0
	if requested != s.terrain.Requested ||
		hdr.TerrainGenerationID != s.terrain.GenerationID {
		s.log.Debug().Int32("source", int32(src.Key)).
			Int64("cached_generation", hdr.TerrainGenerationID).
			Int64("live_generation", s.terrain.GenerationID).
			Msg("terrain generation changed")
		return StatusStale, none, errSoftStale
	}
	delta := study.TerrainDelta{UsedNonStandard: hdr.TerrainUsed != 0}

	var rec fingerprintRecord
	if err := readFixed(r, &rec, "fingerprint record"); err != nil {
		return StatusStale, none, err
	}

	// Counter mismatch is the expected "someone already knows this
	// changed" path: cheap, silent, no field comparison needed.
	if rec.StudyModCount != s.cfg.StudyModCount ||
		rec.SourceModCount != src.ModCount ||
		rec.GeometryModCount != src.ServiceAreaModCount {
		return StatusStale, none, errSoftStale
	}

	if field := rec.compare(src); field != "" {
		return StatusStale, none, fmt.Errorf("%w: field %s differs for source %d",
			ErrCacheInconsistent, field, src.Key)
	}
	if rec.SecondaryCount < 0 || rec.SecondaryCount > maxSecondaries {
		return StatusStale, none, fmt.Errorf("%w: secondary count %d", ErrCacheCorrupt, rec.SecondaryCount)
	}

	// Snapshot matches: restore derived geometry onto the live source.
	src.HasBounds = rec.HasBounds != 0
	src.Bounds = study.GeoBounds{
		SouthLatIndex: rec.BoundsSouth,
		EastLonIndex:  rec.BoundsEast,
		NorthLatIndex: rec.BoundsNorth,
		WestLonIndex:  rec.BoundsWest,
	}
	src.CellArea = rec.CellArea
	src.CellLatSize = rec.CellLatSize
	src.CellLonSize = rec.CellLonSize

	if err := s.readBlocks(r, src,
		rec.HasHorizontalPattern != 0, rec.HasContourPattern != 0,
		rec.HasVerticalPattern != 0, rec.HasServiceContour != 0); err != nil {
		return StatusStale, none, err
	}

	// Composite sources: the reference facility and then every secondary
	// transmitter in strict list order go through the same comparison.
	// Any sub-record failure invalidates the entire source.
	if rec.IsParent != 0 {
		if err := s.loadConstituent(r, src.Reference); err != nil {
			return StatusStale, none, err
		}
		for _, sec := range src.Secondaries {
			if err := s.loadConstituent(r, sec); err != nil {
				return StatusStale, none, err
			}
		}
	}

	src.IsCached = true
	metrics.RecordLoad("fingerprint", "fresh")
	return StatusFresh, delta, nil
}

// loadConstituent reads and validates one abbreviated sub-record (the
// reference facility or one secondary transmitter) plus its data blocks.
func (s *Session) loadConstituent(r io.Reader, live *study.Source) error {
	var rec secondaryRecord
	if err := readFixed(r, &rec, "secondary record"); err != nil {
		return err
	}
	if live == nil || rec.SourceKey != int32(live.Key) {
		// The file's transmitter sequence does not match the live list;
		// once order is wrong nothing later in the file can be trusted.
		return fmt.Errorf("%w: secondary record for source %d out of sequence",
			ErrCacheCorrupt, rec.SourceKey)
	}
	if rec.SourceModCount != live.ModCount || rec.GeometryModCount != live.ServiceAreaModCount {
		return errSoftStale
	}
	if field := rec.compare(live); field != "" {
		return fmt.Errorf("%w: field %s differs for secondary %d",
			ErrCacheInconsistent, field, live.Key)
	}
	return s.readBlocks(r, live,
		rec.HasHorizontalPattern != 0, rec.HasContourPattern != 0,
		rec.HasVerticalPattern != 0, false)
}

// readBlocks reads the attached data blocks flagged present in a record
// and hangs them on the live source. The matrix pattern goes through the
// session's decoded-pattern cache.
func (s *Session) readBlocks(r io.Reader, src *study.Source, hpat, cpat, vpat, contour bool) error {
	if hpat {
		p, err := readPattern(r, "horizontal pattern")
		if err != nil {
			return err
		}
		src.HorizontalPattern = p
	}
	if cpat {
		p, err := readPattern(r, "contour projection pattern")
		if err != nil {
			return err
		}
		src.ContourPattern = p
	}
	if vpat {
		if cached := s.patterns.get(src.Key, src.ModCount); cached != nil {
			if err := skipMatrixPattern(r); err != nil {
				return err
			}
			src.VerticalPattern = cached
		} else {
			m, err := readMatrixPattern(r)
			if err != nil {
				return err
			}
			s.patterns.add(src.Key, src.ModCount, m)
			src.VerticalPattern = m
		}
	}
	if contour {
		c, err := readContour(r)
		if err != nil {
			return err
		}
		src.ServiceContour = c
	}
	return nil
}

// SaveSource unconditionally (re)writes the full fingerprint file for a
// source from its live values: header, record, whichever data blocks are
// present, and for composite sources the reference facility and each
// secondary transmitter in list order. Failure to persist is a minor,
// non-fatal outcome: the computed results simply are not cached this
// run. SaveSource only returns an error for an impossible in-memory
// structure.
func (s *Session) SaveSource(src *study.Source) error {
	if !s.locks.HoldsRunLock() {
		s.log.Debug().Int32("source", int32(src.Key)).Msg("no run lock, fingerprint not saved")
		metrics.RecordSave("fingerprint", "skipped")
		return nil
	}
	if src.IsParent && src.Reference == nil {
		metrics.RecordSave("fingerprint", "failed")
		return fmt.Errorf("%w: composite source %d has no reference facility",
			ErrCacheInconsistent, src.Key)
	}

	anchor, err := s.anchorExclusive(src.Key)
	if err != nil {
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).Msg("fingerprint cache not writable")
		metrics.RecordSave("fingerprint", "failed")
		return nil
	}
	defer anchor.Close()

	var buf bytes.Buffer
	writeFixed(&buf, encodeHeader(magicFingerprint, *s.terrain))
	writeFixed(&buf, s.fingerprintFromSource(src))
	writeSourceBlocks(&buf, src, true)
	if src.IsParent {
		writeFixed(&buf, secondaryFromSource(src.Reference))
		writeSourceBlocks(&buf, src.Reference, false)
		for _, sec := range src.Secondaries {
			writeFixed(&buf, secondaryFromSource(sec))
			writeSourceBlocks(&buf, sec, false)
		}
	}

	f := anchor.File()
	if err := f.Truncate(0); err == nil {
		_, err = f.WriteAt(buf.Bytes(), 0)
	}
	if err != nil {
		// A partial fingerprint is worse than none; take the family with it.
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).Msg("fingerprint write failed")
		_ = s.removeFamily(src.Key)
		metrics.RecordSave("fingerprint", "failed")
		return nil
	}

	if src.VerticalPattern != nil {
		s.patterns.add(src.Key, src.ModCount, src.VerticalPattern)
	}
	src.IsCached = true
	metrics.RecordSave("fingerprint", "written")
	metrics.RecordBytesWritten("fingerprint", buf.Len())
	return nil
}

// writeSourceBlocks appends the data blocks present on a source. The
// service contour belongs to top-level records only; sub-records never
// carry one.
func writeSourceBlocks(buf *bytes.Buffer, src *study.Source, topLevel bool) {
	if src.HorizontalPattern != nil {
		writePattern(buf, src.HorizontalPattern)
	}
	if src.ContourPattern != nil {
		writePattern(buf, src.ContourPattern)
	}
	if src.VerticalPattern != nil {
		writeMatrixPattern(buf, src.VerticalPattern)
	}
	if topLevel && src.ServiceContour != nil {
		writeContour(buf, src.ServiceContour)
	}
}

// fingerprintFromSource snapshots the live source and session counters.
func (s *Session) fingerprintFromSource(src *study.Source) fingerprintRecord {
	rec := fingerprintRecord{
		StudyModCount:    s.cfg.StudyModCount,
		SourceModCount:   src.ModCount,
		GeometryModCount: src.ServiceAreaModCount,

		SourceKey:          int32(src.Key),
		FacilityID:         src.FacilityID,
		Channel:            src.Channel,
		CountryKey:         src.CountryKey,
		ServiceKey:         src.ServiceKey,
		SignalTypeKey:      src.SignalTypeKey,
		FrequencyOffsetKey: src.FrequencyOffsetKey,
		EmissionMaskKey:    src.EmissionMaskKey,
		ServiceAreaMode:    src.ServiceAreaMode,
		ServiceAreaKey:     src.ServiceAreaKey,
		IsParent:           boolFlag(src.IsParent),
		SecondaryCount:     int32(len(src.Secondaries)),

		Latitude:            src.Latitude,
		Longitude:           src.Longitude,
		HeightAMSL:          src.HeightAMSL,
		ActualHAAT:          src.ActualHAAT,
		PeakERP:             src.PeakERP,
		HpatOrientation:     src.HpatOrientation,
		VpatElectricalTilt:  src.VpatElectricalTilt,
		VpatMechanicalTilt:  src.VpatMechanicalTilt,
		VpatTiltOrientation: src.VpatTiltOrientation,
		TimeDelay:           src.TimeDelay,
		ServiceAreaArg:      src.ServiceAreaArg,
		ServiceAreaCL:       src.ServiceAreaCL,
		DTSMaximumDistance:  src.DTSMaximumDistance,

		HasBounds:   boolFlag(src.HasBounds),
		BoundsSouth: src.Bounds.SouthLatIndex,
		BoundsEast:  src.Bounds.EastLonIndex,
		BoundsNorth: src.Bounds.NorthLatIndex,
		BoundsWest:  src.Bounds.WestLonIndex,
		CellArea:    src.CellArea,
		CellLatSize: src.CellLatSize,
		CellLonSize: src.CellLonSize,

		HasHorizontalPattern: boolFlag(src.HorizontalPattern != nil),
		HasContourPattern:    boolFlag(src.ContourPattern != nil),
		HasVerticalPattern:   boolFlag(src.VerticalPattern != nil),
		HasServiceContour:    boolFlag(src.ServiceContour != nil),
	}
	return rec
}

// secondaryFromSource snapshots one constituent of a composite source.
func secondaryFromSource(src *study.Source) secondaryRecord {
	return secondaryRecord{
		SourceModCount:   src.ModCount,
		GeometryModCount: src.ServiceAreaModCount,

		SourceKey:          int32(src.Key),
		FacilityID:         src.FacilityID,
		Channel:            src.Channel,
		CountryKey:         src.CountryKey,
		ServiceKey:         src.ServiceKey,
		SignalTypeKey:      src.SignalTypeKey,
		FrequencyOffsetKey: src.FrequencyOffsetKey,
		EmissionMaskKey:    src.EmissionMaskKey,

		Latitude:            src.Latitude,
		Longitude:           src.Longitude,
		HeightAMSL:          src.HeightAMSL,
		ActualHAAT:          src.ActualHAAT,
		PeakERP:             src.PeakERP,
		HpatOrientation:     src.HpatOrientation,
		VpatElectricalTilt:  src.VpatElectricalTilt,
		VpatMechanicalTilt:  src.VpatMechanicalTilt,
		VpatTiltOrientation: src.VpatTiltOrientation,
		TimeDelay:           src.TimeDelay,

		HasHorizontalPattern: boolFlag(src.HorizontalPattern != nil),
		HasContourPattern:    boolFlag(src.ContourPattern != nil),
		HasVerticalPattern:   boolFlag(src.VerticalPattern != nil),
	}
}

// compare checks every snapshotted parameter against the live source,
// returning the name of the first mismatching field, or "". Floating
// point fields use the ULP tolerance; everything else is exact.
func (r *fingerprintRecord) compare(src *study.Source) string {
	switch {
	case r.SourceKey != int32(src.Key):
		return "source_key"
	case r.FacilityID != src.FacilityID:
		return "facility_id"
	case r.Channel != src.Channel:
		return "channel"
	case r.CountryKey != src.CountryKey:
		return "country_key"
	case r.ServiceKey != src.ServiceKey:
		return "service_key"
	case r.SignalTypeKey != src.SignalTypeKey:
		return "signal_type_key"
	case r.FrequencyOffsetKey != src.FrequencyOffsetKey:
		return "frequency_offset_key"
	case r.EmissionMaskKey != src.EmissionMaskKey:
		return "emission_mask_key"
	case r.ServiceAreaMode != src.ServiceAreaMode:
		return "service_area_mode"
	case r.ServiceAreaKey != src.ServiceAreaKey:
		return "service_area_key"
	case r.IsParent != boolFlag(src.IsParent):
		return "is_parent"
	case r.SecondaryCount != int32(len(src.Secondaries)):
		return "secondary_count"
	case diffFloat64(r.Latitude, src.Latitude):
		return "latitude"
	case diffFloat64(r.Longitude, src.Longitude):
		return "longitude"
	case diffFloat64(r.HeightAMSL, src.HeightAMSL):
		return "height_amsl"
	case diffFloat64(r.ActualHAAT, src.ActualHAAT):
		return "actual_haat"
	case diffFloat64(r.PeakERP, src.PeakERP):
		return "peak_erp"
	case diffFloat64(r.HpatOrientation, src.HpatOrientation):
		return "hpat_orientation"
	case diffFloat64(r.VpatElectricalTilt, src.VpatElectricalTilt):
		return "vpat_electrical_tilt"
	case diffFloat64(r.VpatMechanicalTilt, src.VpatMechanicalTilt):
		return "vpat_mechanical_tilt"
	case diffFloat64(r.VpatTiltOrientation, src.VpatTiltOrientation):
		return "vpat_tilt_orientation"
	case diffFloat64(r.TimeDelay, src.TimeDelay):
		return "time_delay"
	case diffFloat64(r.ServiceAreaArg, src.ServiceAreaArg):
		return "service_area_arg"
	case diffFloat64(r.ServiceAreaCL, src.ServiceAreaCL):
		return "service_area_cl"
	case diffFloat64(r.DTSMaximumDistance, src.DTSMaximumDistance):
		return "dts_maximum_distance"
	}
	return ""
}

// compare for the abbreviated sub-record; the geometry fields defined at
// the composite level are not present to compare.
func (r *secondaryRecord) compare(src *study.Source) string {
	switch {
	case r.FacilityID != src.FacilityID:
		return "facility_id"
	case r.Channel != src.Channel:
		return "channel"
	case r.CountryKey != src.CountryKey:
		return "country_key"
	case r.ServiceKey != src.ServiceKey:
		return "service_key"
	case r.SignalTypeKey != src.SignalTypeKey:
		return "signal_type_key"
	case r.FrequencyOffsetKey != src.FrequencyOffsetKey:
		return "frequency_offset_key"
	case r.EmissionMaskKey != src.EmissionMaskKey:
		return "emission_mask_key"
	case diffFloat64(r.Latitude, src.Latitude):
		return "latitude"
	case diffFloat64(r.Longitude, src.Longitude):
		return "longitude"
	case diffFloat64(r.HeightAMSL, src.HeightAMSL):
		return "height_amsl"
	case diffFloat64(r.ActualHAAT, src.ActualHAAT):
		return "actual_haat"
	case diffFloat64(r.PeakERP, src.PeakERP):
		return "peak_erp"
	case diffFloat64(r.HpatOrientation, src.HpatOrientation):
		return "hpat_orientation"
	case diffFloat64(r.VpatElectricalTilt, src.VpatElectricalTilt):
		return "vpat_electrical_tilt"
	case diffFloat64(r.VpatMechanicalTilt, src.VpatMechanicalTilt):
		return "vpat_mechanical_tilt"
	case diffFloat64(r.VpatTiltOrientation, src.VpatTiltOrientation):
		return "vpat_tilt_orientation"
	case diffFloat64(r.TimeDelay, src.TimeDelay):
		return "time_delay"
	}
	return ""
}

// corruptionCause maps a corruption error to the metric label recorded
// for it.
func corruptionCause(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "short read"):
		return "short_read"
	case strings.Contains(msg, "magic"):
		return "bad_magic"
	case strings.Contains(msg, "sequence"):
		return "sequence"
	case strings.Contains(msg, "checksum"):
		return "checksum"
	case strings.Contains(msg, "end marker"):
		return "end_marker"
	case strings.Contains(msg, "duplicate"):
		return "duplicate_point"
	default:
		return "other"
	}
}
