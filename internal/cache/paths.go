// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"fmt"
	"path/filepath"

	"github.com/spectrumlab/propstudy/internal/study"
)

// File name extensions by cache kind.
const (
	extFingerprint  = "fpt"
	extCoverage     = "cov"
	extContribution = "fld"
)

// studyDir returns the directory holding all cache files for one study:
// <root>/<databaseID>/stu_<studyKey>.
func studyDir(root, databaseID string, studyKey int32) string {
	return filepath.Join(root, databaseID, fmt.Sprintf("stu_%d", studyKey))
}

// fingerprintPath returns the fingerprint file path for a source. The
// fingerprint file doubles as the anchor lock for the source's whole
// cache family.
func fingerprintPath(root, databaseID string, studyKey int32, src study.SourceKey) string {
	return filepath.Join(studyDir(root, databaseID, studyKey),
		fmt.Sprintf("src_%d.%s", src, extFingerprint))
}

// coveragePath returns the complete coverage cache file path for a source.
func coveragePath(root, databaseID string, studyKey int32, src study.SourceKey) string {
	return filepath.Join(studyDir(root, databaseID, studyKey),
		fmt.Sprintf("src_%d.%s", src, extCoverage))
}

// contributionPath returns the contribution (append) cache file path for
// an undesired source. In local-grid mode each desired source has its own
// grid, so the file is further segmented by the desired source's key; in
// global-grid mode one file per undesired source covers the study and
// desired is ignored.
func contributionPath(root, databaseID string, studyKey int32, mode study.GridMode,
	src, desired study.SourceKey) string {

	dir := studyDir(root, databaseID, studyKey)
	if mode == study.GridLocal {
		return filepath.Join(dir, fmt.Sprintf("src_%d_for_%d.%s", src, desired, extContribution))
	}
	return filepath.Join(dir, fmt.Sprintf("src_%d.%s", src, extContribution))
}

// contributionGlob returns a pattern matching every contribution file a
// source may own regardless of grid mode, for whole-family deletion.
func contributionGlob(root, databaseID string, studyKey int32, src study.SourceKey) []string {
	dir := studyDir(root, databaseID, studyKey)
	return []string{
		filepath.Join(dir, fmt.Sprintf("src_%d.%s", src, extContribution)),
		filepath.Join(dir, fmt.Sprintf("src_%d_for_*.%s", src, extContribution)),
	}
}
