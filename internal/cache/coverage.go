// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spectrumlab/propstudy/internal/metrics"
	"github.com/spectrumlab/propstudy/internal/study"
)

// coverageFile is a fully parsed complete cache: validated records ready
// to apply to the grid. The complete cache is read all-or-nothing, so
// nothing touches the grid until the whole file, end marker included, has
// checked out.
type coverageFile struct {
	records []coverageRecord
}

type coverageRecord struct {
	cell        cellRecord
	secondaries []secondaryCellRecord
}

// LoadCoverage restores a source's complete coverage cache into the grid.
// It is only meaningful after LoadSource reported Fresh for the source;
// calling it earlier is a miss.
//
// Every record must carry this source's key and fall inside the live
// study bounds. This cache is defined to be spatially complete, so an
// out-of-bounds record is corruption, not noise (contrast with the
// contribution cache, which skips such records). A duplicate point within
// the file is corruption; a record colliding with a field already
// resident in the grid is fatal inconsistency. Returns the number of
// fields restored.
func (s *Session) LoadCoverage(src *study.Source, grid *study.Grid) (int, error) {
	if !src.IsCached {
		return 0, ErrNotCached
	}

	anchor, err := s.anchorShared(src.Key)
	if err != nil {
		if errors.Is(err, ErrNotCached) {
			metrics.RecordLoad("coverage", "absent")
			return 0, ErrNotCached
		}
		return 0, err
	}
	defer anchor.Close()

	path := s.coveragePath(src.Key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.RecordLoad("coverage", "absent")
			return 0, ErrNotCached
		}
		return 0, fmt.Errorf("read coverage cache: %w", err)
	}

	cov, err := s.parseCoverage(data, src)
	if err != nil {
		if errors.Is(err, errSoftStale) {
			s.log.Debug().Int32("source", int32(src.Key)).Msg("coverage cache invalidated")
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.Warn().Err(rmErr).Str("path", path).Msg("stale coverage removal failed")
			}
			metrics.RecordLoad("coverage", "stale")
			return 0, ErrNotCached
		}
		s.log.Error().Err(err).Int32("source", int32(src.Key)).Msg("coverage cache corrupt")
		s.removeFile(path, "coverage", corruptionCause(err))
		metrics.RecordLoad("coverage", "corrupt")
		return 0, err
	}

	restored := 0
	for i := range cov.records {
		rec := &cov.records[i]
		point, _ := grid.InsertPointIfAbsent(rec.cell.toPoint())
		field := rec.cell.toField()
		for _, sub := range rec.secondaries {
			field.Secondaries = append(field.Secondaries, sub.toSecondaryField())
		}
		if _, inserted := point.InsertFieldIfAbsent(field); !inserted {
			// The grid already holds a field for this contributor and
			// class: two writers produced the same sample, which the
			// external study lock is supposed to make impossible. There
			// is no way to decide which value is authoritative.
			err := fmt.Errorf("%w: duplicate field for source %d at cell (%d,%d)",
				ErrCacheInconsistent, src.Key, rec.cell.LatIndex, rec.cell.LonIndex)
			s.log.Error().Err(err).Msg("coverage cache conflicts with grid")
			return restored, err
		}
		restored++
	}

	metrics.RecordLoad("coverage", "fresh")
	metrics.RecordRestored("coverage", restored)
	return restored, nil
}

// parseCoverage validates the whole file before anything is applied.
func (s *Session) parseCoverage(data []byte, src *study.Source) (*coverageFile, error) {
	r := bytes.NewReader(data)

	var hdr header
	if err := readFixed(r, &hdr, "coverage header"); err != nil {
		return nil, err
	}
	if hdr.Magic != magicCoverage {
		return nil, fmt.Errorf("%w: coverage magic %#x", ErrCacheCorrupt, hdr.Magic)
	}
	if hdr.Version != formatVersion {
		return nil, errSoftStale
	}
	requested := hdr.TerrainRequested != 0
	if requested != s.terrain.Requested || hdr.TerrainGenerationID != s.terrain.GenerationID {
		return nil, errSoftStale
	}

	wantSecondaries := int32(0)
	if src.IsParent {
		wantSecondaries = int32(len(src.Secondaries))
	}

	cov := &coverageFile{}
	type cellID struct {
		lat, lon int32
		pct      int32
	}
	seen := make(map[cellID]struct{})
	chain := uint32(0)

	for r.Len() > 4 {
		var cell cellRecord
		if err := readFixed(r, &cell, "coverage record"); err != nil {
			return nil, err
		}
		if cell.SourceKey != int32(src.Key) {
			return nil, fmt.Errorf("%w: coverage record for foreign source %d",
				ErrCacheCorrupt, cell.SourceKey)
		}
		if !s.cfg.StudyBounds.Contains(cell.LatIndex, cell.LonIndex) {
			return nil, fmt.Errorf("%w: coverage record at (%d,%d) outside study bounds",
				ErrCacheCorrupt, cell.LatIndex, cell.LonIndex)
		}
		id := cellID{cell.LatIndex, cell.LonIndex, cell.PercentTime}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate coverage record at (%d,%d)",
				ErrCacheCorrupt, cell.LatIndex, cell.LonIndex)
		}
		seen[id] = struct{}{}
		if cell.SecondaryCount != wantSecondaries {
			return nil, fmt.Errorf("%w: coverage record secondary count %d, want %d",
				ErrCacheCorrupt, cell.SecondaryCount, wantSecondaries)
		}

		chain = cell.chain(chain)
		if cell.Checksum != chain {
			return nil, fmt.Errorf("%w: checksum mismatch in coverage record at (%d,%d)",
				ErrCacheCorrupt, cell.LatIndex, cell.LonIndex)
		}

		rec := coverageRecord{cell: cell}
		for i := int32(0); i < cell.SecondaryCount; i++ {
			var sub secondaryCellRecord
			if err := readFixed(r, &sub, "coverage secondary record"); err != nil {
				return nil, err
			}
			if sub.SourceKey != int32(src.Secondaries[i].Key) {
				return nil, fmt.Errorf("%w: secondary cell record for source %d out of sequence",
					ErrCacheCorrupt, sub.SourceKey)
			}
			chain = sub.chain(chain)
			if sub.Checksum != chain {
				return nil, fmt.Errorf("%w: checksum mismatch in secondary cell record",
					ErrCacheCorrupt)
			}
			rec.secondaries = append(rec.secondaries, sub)
		}
		cov.records = append(cov.records, rec)
	}

	// The file must close with the magic number repeated as an end
	// marker; a well-formed writer always seals its rewrite with it.
	var trailer int32
	if err := readFixed(r, &trailer, "coverage end marker"); err != nil {
		return nil, err
	}
	if trailer != magicCoverage || r.Len() != 0 {
		return nil, fmt.Errorf("%w: coverage end marker missing", ErrCacheCorrupt)
	}
	return cov, nil
}

// SaveCoverage rewrites the source's complete coverage file from a full,
// ordered re-scan of the grid restricted to the source's own bounds,
// sealed with the trailing magic number. The previous file content is
// always replaced in full.
func (s *Session) SaveCoverage(src *study.Source, grid *study.Grid) error {
	if !s.locks.HoldsRunLock() {
		s.log.Debug().Int32("source", int32(src.Key)).Msg("no run lock, coverage not saved")
		metrics.RecordSave("coverage", "skipped")
		return nil
	}
	if !src.HasBounds {
		metrics.RecordSave("coverage", "skipped")
		return nil
	}

	var buf bytes.Buffer
	writeFixed(&buf, encodeHeader(magicCoverage, *s.terrain))

	chain := uint32(0)
	for _, point := range grid.Points() {
		if !src.Bounds.Contains(point.LatIndex, point.LonIndex) {
			continue
		}
		for _, field := range point.Fields {
			if field.SourceKey != src.Key {
				continue
			}
			var err error
			chain, err = appendCellRecord(&buf, point, field, src, chain)
			if err != nil {
				s.log.Error().Err(err).Int32("source", int32(src.Key)).
					Msg("grid state unusable for coverage save")
				metrics.RecordSave("coverage", "failed")
				return err
			}
		}
	}
	writeFixed(&buf, magicCoverage)

	anchor, err := s.anchorExclusive(src.Key)
	if err != nil {
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).Msg("coverage cache not writable")
		metrics.RecordSave("coverage", "failed")
		return nil
	}
	defer anchor.Close()

	path := s.coveragePath(src.Key)
	if err := writeFileReplacing(path, buf.Bytes()); err != nil {
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).Msg("coverage write failed")
		metrics.RecordSave("coverage", "failed")
		return nil
	}

	metrics.RecordSave("coverage", "written")
	metrics.RecordBytesWritten("coverage", buf.Len())
	return nil
}

// appendCellRecord encodes one point/field pair plus composite
// sub-records, continuing the checksum chain. The field's secondary
// samples must match the source's transmitter list exactly, in order;
// anything else means the in-memory grid broke the ordering contract.
func appendCellRecord(buf *bytes.Buffer, point *study.Point, field *study.Field,
	src *study.Source, chain uint32) (uint32, error) {

	cell := makeCellRecord(point, field)
	if src.IsParent {
		if len(field.Secondaries) != len(src.Secondaries) {
			return chain, fmt.Errorf("%w: field at (%d,%d) has %d secondary samples, want %d",
				ErrCacheInconsistent, point.LatIndex, point.LonIndex,
				len(field.Secondaries), len(src.Secondaries))
		}
		cell.SecondaryCount = int32(len(src.Secondaries))
	}

	chain = cell.chain(chain)
	cell.Checksum = chain
	writeFixed(buf, cell)

	if !src.IsParent {
		return chain, nil
	}
	for i, sf := range field.Secondaries {
		if sf.SourceKey != src.Secondaries[i].Key {
			return chain, fmt.Errorf("%w: secondary sample %d is for source %d, want %d",
				ErrCacheInconsistent, i, sf.SourceKey, src.Secondaries[i].Key)
		}
		sub := makeSecondaryCellRecord(sf)
		chain = sub.chain(chain)
		sub.Checksum = chain
		writeFixed(buf, sub)
	}
	return chain, nil
}

// writeFileReplacing truncates-and-writes path with data. The caller
// holds the exclusive anchor, so readers never observe the intermediate
// state.
func writeFileReplacing(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
