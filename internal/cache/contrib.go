// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/spectrumlab/propstudy/internal/metrics"
	"github.com/spectrumlab/propstudy/internal/study"
)

// LoadContributions merges a source's contribution (append) cache into
// the grid. Unlike the coverage cache this file may be incomplete
// forever: records this run does not need are silently skipped, and
// records this run needs but the file lacks are simply recomputed, and
// callers verify completeness themselves. A missing file is therefore
// not even reported as a miss; the load just restores nothing.
//
// Records are applied as they validate. When the checksum chain breaks
// mid-file, everything already restored is kept, the file is deleted,
// and the load still succeeds; the lost tail is recomputed and re-cached
// by later runs. The chain value of the last good record is retained as
// this file's watermark for SaveContributions.
//
// desired selects the per-desired cache file in local-grid mode and is
// ignored in global-grid mode.
func (s *Session) LoadContributions(src *study.Source, desired study.SourceKey,
	grid *study.Grid) (int, error) {

	path := s.contributionPath(src.Key, desired)

	anchor, err := s.anchorShared(src.Key)
	if err != nil {
		if errors.Is(err, ErrNotCached) {
			// No fingerprint anchor at all: the family does not exist
			// yet. Record an empty watermark so a save may create it.
			s.watermarks[path] = 0
			metrics.RecordLoad("contribution", "absent")
			return 0, nil
		}
		return 0, err
	}
	defer anchor.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.watermarks[path] = 0
			metrics.RecordLoad("contribution", "absent")
			return 0, nil
		}
		return 0, fmt.Errorf("read contribution cache: %w", err)
	}

	r := bytes.NewReader(data)
	var hdr header
	if err := readFixed(r, &hdr, "contribution header"); err != nil {
		return 0, s.dropContributions(path, err)
	}
	if hdr.Magic != magicContribution {
		return 0, s.dropContributions(path,
			fmt.Errorf("%w: contribution magic %#x", ErrCacheCorrupt, hdr.Magic))
	}
	if hdr.Version != formatVersion ||
		(hdr.TerrainRequested != 0) != s.terrain.Requested ||
		hdr.TerrainGenerationID != s.terrain.GenerationID {
		// Soft invalidation; start the file over on the next save.
		s.logAnomalyOnce("contribution_generation", func(ev *zerolog.Event) {
			ev.Str("path", path)
		})
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("stale contribution removal failed")
		}
		s.watermarks[path] = 0
		metrics.RecordLoad("contribution", "stale")
		return 0, nil
	}

	wantSecondaries := int32(0)
	if src.IsParent {
		wantSecondaries = int32(len(src.Secondaries))
	}

	restored := 0
	chain := uint32(0)
	for r.Len() > 0 {
		var cell cellRecord
		if err := readFixed(r, &cell, "contribution record"); err != nil {
			return restored, s.dropContributions(path, err)
		}
		if cell.SourceKey != int32(src.Key) ||
			cell.SecondaryCount != wantSecondaries {
			return restored, s.dropContributions(path,
				fmt.Errorf("%w: malformed contribution record for source %d",
					ErrCacheCorrupt, cell.SourceKey))
		}
		chain = cell.chain(chain)
		if cell.Checksum != chain {
			return restored, s.dropContributions(path,
				fmt.Errorf("%w: checksum mismatch in contribution record at (%d,%d)",
					ErrCacheCorrupt, cell.LatIndex, cell.LonIndex))
		}

		subs := make([]secondaryCellRecord, 0, cell.SecondaryCount)
		for i := int32(0); i < cell.SecondaryCount; i++ {
			var sub secondaryCellRecord
			if err := readFixed(r, &sub, "contribution secondary record"); err != nil {
				return restored, s.dropContributions(path, err)
			}
			if sub.SourceKey != int32(src.Secondaries[i].Key) {
				return restored, s.dropContributions(path,
					fmt.Errorf("%w: secondary cell record for source %d out of sequence",
						ErrCacheCorrupt, sub.SourceKey))
			}
			chain = sub.chain(chain)
			if sub.Checksum != chain {
				return restored, s.dropContributions(path,
					fmt.Errorf("%w: checksum mismatch in secondary cell record",
						ErrCacheCorrupt))
			}
			subs = append(subs, sub)
		}

		// Out-of-bounds records are normal here: the file may hold data
		// for areas this run does not cover. Skip, but the record stays
		// part of the checksum chain.
		if !s.cfg.StudyBounds.Contains(cell.LatIndex, cell.LonIndex) {
			continue
		}

		point, _ := grid.InsertPointIfAbsent(cell.toPoint())
		field := cell.toField()
		for _, sub := range subs {
			field.Secondaries = append(field.Secondaries, sub.toSecondaryField())
		}
		if _, inserted := point.InsertFieldIfAbsent(field); !inserted {
			err := fmt.Errorf("%w: duplicate field for source %d at cell (%d,%d)",
				ErrCacheInconsistent, src.Key, cell.LatIndex, cell.LonIndex)
			s.log.Error().Err(err).Msg("contribution cache conflicts with grid")
			return restored, err
		}
		restored++
	}

	s.watermarks[path] = chain
	metrics.RecordLoad("contribution", "fresh")
	metrics.RecordRestored("contribution", restored)
	return restored, nil
}

// dropContributions handles mid-file corruption: log, delete the file,
// reset the watermark (a fresh file restarts the chain from zero), and
// report success so the run keeps the records it already restored.
func (s *Session) dropContributions(path string, cause error) error {
	s.log.Error().Err(cause).Str("path", path).Msg("contribution cache corrupt")
	s.removeFile(path, "contribution", corruptionCause(cause))
	s.watermarks[path] = 0
	metrics.RecordLoad("contribution", "corrupt")
	return nil
}

// SaveContributions appends the source's not-yet-cached fields to its
// contribution file. Before anything is written, the checksum of the last
// record currently on disk is re-read under the exclusive anchor and
// compared against the watermark from this session's load. A mismatch
// means another process appended since then; the save is silently
// forfeited rather than risking a duplicate or blocking behind the
// other writer. Forfeited records are recomputed, never lost, on a
// future run.
//
// On a match the header is rewritten to refresh the terrain-generation
// flags and the new records are appended continuing the checksum chain.
// A secondary-transmitter ordering violation in the in-memory grid aborts
// with ErrCacheInconsistent before any byte reaches the file.
func (s *Session) SaveContributions(src *study.Source, desired study.SourceKey,
	grid *study.Grid) error {

	if !s.locks.HoldsRunLock() {
		s.log.Debug().Int32("source", int32(src.Key)).Msg("no run lock, contributions not saved")
		metrics.RecordSave("contribution", "skipped")
		return nil
	}

	path := s.contributionPath(src.Key, desired)
	watermark, loaded := s.watermarks[path]
	if !loaded {
		// Never read this run: there is no basis for the race check.
		s.log.Debug().Str("path", path).Msg("contribution file not loaded this run, not saving")
		metrics.RecordSave("contribution", "skipped")
		return nil
	}

	// Build the appended records in memory first; the ordering contract is
	// validated before any byte reaches the file. The chain seeds from the
	// load-time watermark, which the race check below proves is still the
	// chain tail on disk.
	var appendBuf bytes.Buffer
	var written []*study.Field
	chain := watermark
	for _, point := range grid.Points() {
		for _, field := range point.Fields {
			if field.SourceKey != src.Key || field.Cached {
				continue
			}
			var err error
			chain, err = appendCellRecord(&appendBuf, point, field, src, chain)
			if err != nil {
				s.log.Error().Err(err).Int32("source", int32(src.Key)).
					Msg("grid state unusable for contribution save")
				metrics.RecordSave("contribution", "failed")
				return err
			}
			written = append(written, field)
		}
	}

	anchor, err := s.anchorExclusive(src.Key)
	if err != nil {
		s.log.Warn().Err(err).Int32("source", int32(src.Key)).Msg("contribution cache not writable")
		metrics.RecordSave("contribution", "failed")
		return nil
	}
	defer anchor.Close()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("contribution cache not writable")
		metrics.RecordSave("contribution", "failed")
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		metrics.RecordSave("contribution", "failed")
		return fmt.Errorf("stat contribution cache: %w", err)
	}
	origSize := info.Size()

	diskMark, ok := lastChecksumOnDisk(f, origSize)
	if !ok {
		// Garbage too short to hold a header: start the file over, but
		// only if this process believes the file should be empty.
		if watermark != 0 {
			metrics.AppendRaceSkips.Inc()
			metrics.RecordSave("contribution", "skipped")
			return nil
		}
		if err := f.Truncate(0); err != nil {
			metrics.RecordSave("contribution", "failed")
			return fmt.Errorf("truncate contribution cache: %w", err)
		}
		origSize = 0
	}
	if diskMark != watermark {
		// Another process wrote the file since this one last read it.
		// Forfeit the append; duplicate computation is safe, duplicate
		// storage is not.
		s.log.Debug().Str("path", path).
			Uint32("watermark", watermark).Uint32("on_disk", diskMark).
			Msg("foreign writer detected, contribution save skipped")
		metrics.AppendRaceSkips.Inc()
		metrics.RecordSave("contribution", "skipped")
		return nil
	}

	var hdrBuf bytes.Buffer
	writeFixed(&hdrBuf, encodeHeader(magicContribution, *s.terrain))
	if _, err := f.WriteAt(hdrBuf.Bytes(), 0); err != nil {
		metrics.RecordSave("contribution", "failed")
		return fmt.Errorf("rewrite contribution header: %w", err)
	}
	if origSize < int64(headerSize) {
		origSize = int64(headerSize)
	}

	if appendBuf.Len() > 0 {
		if _, err := f.WriteAt(appendBuf.Bytes(), origSize); err != nil {
			// Take the partial tail back off; the prior records stay valid.
			if trErr := f.Truncate(origSize); trErr != nil {
				s.log.Error().Err(trErr).Str("path", path).
					Msg("failed to truncate partial contribution append")
			}
			s.log.Warn().Err(err).Str("path", path).Msg("contribution append failed")
			metrics.RecordSave("contribution", "failed")
			return nil
		}
	}

	for _, field := range written {
		field.Cached = true
	}
	s.watermarks[path] = chain
	metrics.RecordSave("contribution", "written")
	metrics.RecordBytesWritten("contribution", hdrBuf.Len()+appendBuf.Len())
	return nil
}

// lastChecksumOnDisk reads the rolling-chain value of the last record in
// the file: the checksum field is the final field of both cell record
// layouts, so it is always the file's last 4 bytes. A file holding only
// a header (or nothing) reports a zero chain. Returns ok=false when the
// file is too short to even hold a header.
func lastChecksumOnDisk(f *os.File, size int64) (uint32, bool) {
	if size == 0 {
		return 0, true
	}
	if size < int64(headerSize) {
		return 0, false
	}
	if size == int64(headerSize) {
		return 0, true
	}
	var tail [4]byte
	if _, err := f.ReadAt(tail[:], size-4); err != nil && err != io.EOF {
		return 0, false
	}
	return byteOrder.Uint32(tail[:]), true
}
