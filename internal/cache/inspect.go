// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spectrumlab/propstudy/internal/study"
)

// Report is the operator-facing summary of one source's cache family,
// produced without validating against live study parameters. Problems are
// reported, never acted on: Inspect deletes nothing.
type Report struct {
	SourceKey     int32         `json:"source_key"`
	Fingerprint   *FileReport   `json:"fingerprint,omitempty"`
	Coverage      *FileReport   `json:"coverage,omitempty"`
	Contributions []*FileReport `json:"contributions,omitempty"`
}

// FileReport summarizes one cache file.
type FileReport struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`

	Version             int32 `json:"version"`
	TerrainGenerationID int64 `json:"terrain_generation_id"`
	TerrainRequested    bool  `json:"terrain_requested"`
	TerrainUsed         bool  `json:"terrain_used"`

	// Fingerprint only.
	StudyModCount    int32 `json:"study_mod_count,omitempty"`
	SourceModCount   int32 `json:"source_mod_count,omitempty"`
	GeometryModCount int32 `json:"geometry_mod_count,omitempty"`
	IsParent         bool  `json:"is_parent,omitempty"`
	SecondaryCount   int32 `json:"secondary_count,omitempty"`

	// Cell caches only.
	Records   int    `json:"records"`
	Complete  bool   `json:"complete,omitempty"` // coverage end marker seen
	Watermark uint32 `json:"watermark,omitempty"`

	Problem string `json:"problem,omitempty"`
}

// Inspect reads a source's cache family under the shared anchor and
// summarizes each file's header, record counts, and checksum-chain state.
// A missing fingerprint yields ErrNotCached; everything past that is
// reported in the Report, not returned as an error.
func (s *Session) Inspect(src study.SourceKey) (*Report, error) {
	anchor, err := s.anchorShared(src)
	if err != nil {
		return nil, err
	}
	defer anchor.Close()

	rep := &Report{SourceKey: int32(src)}
	rep.Fingerprint = inspectFingerprint(s.fingerprintPath(src))
	if fr := inspectCells(s.coveragePath(src), magicCoverage); fr != nil {
		rep.Coverage = fr
	}

	var paths []string
	for _, pat := range contributionGlob(s.cfg.RootDir, s.cfg.DatabaseID, s.cfg.StudyKey, src) {
		matches, err := filepath.Glob(pat)
		if err != nil {
			continue
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if fr := inspectCells(p, magicContribution); fr != nil {
			rep.Contributions = append(rep.Contributions, fr)
		}
	}
	return rep, nil
}

func inspectFingerprint(path string) *FileReport {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileReport{Path: path, Problem: err.Error()}
	}
	fr := &FileReport{Path: path, SizeBytes: int64(len(data))}
	r := bytes.NewReader(data)

	var hdr header
	if err := readFixed(r, &hdr, "fingerprint header"); err != nil {
		fr.Problem = err.Error()
		return fr
	}
	if hdr.Magic != magicFingerprint {
		fr.Problem = fmt.Sprintf("bad magic %#x", hdr.Magic)
		return fr
	}
	fr.fillHeader(hdr)

	var rec fingerprintRecord
	if err := readFixed(r, &rec, "fingerprint record"); err != nil {
		fr.Problem = err.Error()
		return fr
	}
	fr.StudyModCount = rec.StudyModCount
	fr.SourceModCount = rec.SourceModCount
	fr.GeometryModCount = rec.GeometryModCount
	fr.IsParent = rec.IsParent != 0
	fr.SecondaryCount = rec.SecondaryCount
	return fr
}

// inspectCells walks a cell cache file, verifying the checksum chain and
// counting records. Returns nil when the file does not exist.
func inspectCells(path string, magic int32) *FileReport {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &FileReport{Path: path, Problem: err.Error()}
	}
	fr := &FileReport{Path: path, SizeBytes: int64(len(data))}
	r := bytes.NewReader(data)

	var hdr header
	if err := readFixed(r, &hdr, "header"); err != nil {
		fr.Problem = err.Error()
		return fr
	}
	if hdr.Magic != magic {
		fr.Problem = fmt.Sprintf("bad magic %#x", hdr.Magic)
		return fr
	}
	fr.fillHeader(hdr)

	chain := uint32(0)
	trailerLen := 0
	if magic == magicCoverage {
		trailerLen = 4
	}
	for r.Len() > trailerLen {
		var cell cellRecord
		if err := readFixed(r, &cell, "cell record"); err != nil {
			fr.Problem = err.Error()
			return fr
		}
		chain = cell.chain(chain)
		if cell.Checksum != chain {
			fr.Problem = fmt.Sprintf("checksum chain breaks at record %d", fr.Records+1)
			return fr
		}
		if cell.SecondaryCount < 0 || cell.SecondaryCount > maxSecondaries {
			fr.Problem = fmt.Sprintf("record %d secondary count %d", fr.Records+1, cell.SecondaryCount)
			return fr
		}
		for i := int32(0); i < cell.SecondaryCount; i++ {
			var sub secondaryCellRecord
			if err := readFixed(r, &sub, "secondary cell record"); err != nil {
				fr.Problem = err.Error()
				return fr
			}
			chain = sub.chain(chain)
			if sub.Checksum != chain {
				fr.Problem = fmt.Sprintf("checksum chain breaks in record %d", fr.Records+1)
				return fr
			}
		}
		fr.Records++
	}
	fr.Watermark = chain

	if magic == magicCoverage {
		var trailer int32
		if err := readFixed(r, &trailer, "end marker"); err != nil {
			fr.Problem = err.Error()
			return fr
		}
		fr.Complete = trailer == magicCoverage && r.Len() == 0
		if !fr.Complete {
			fr.Problem = "end marker missing"
		}
	}
	return fr
}

func (fr *FileReport) fillHeader(hdr header) {
	fr.Version = hdr.Version
	fr.TerrainGenerationID = hdr.TerrainGenerationID
	fr.TerrainRequested = hdr.TerrainRequested != 0
	fr.TerrainUsed = hdr.TerrainUsed != 0
}
