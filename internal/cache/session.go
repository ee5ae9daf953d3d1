// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spectrumlab/propstudy/internal/logging"
	"github.com/spectrumlab/propstudy/internal/metrics"
	"github.com/spectrumlab/propstudy/internal/study"
)

// Config identifies the cache namespace a session works in and the live
// study values every staleness check compares against.
type Config struct {
	// RootDir is the caller-provided cache root directory.
	RootDir string

	// DatabaseID segments the cache by station database.
	DatabaseID string

	// StudyKey and StudyModCount identify the study and its current
	// study-level modification counter.
	StudyKey      int32
	StudyModCount int32

	// GridMode decides contribution file naming; see contributionPath.
	GridMode study.GridMode

	// StudyBounds is the live study's spatial extent. Coverage records
	// outside it are corruption; contribution records outside it are
	// silently skipped.
	StudyBounds study.GeoBounds

	// PatternCacheSize bounds the in-memory decoded-pattern cache.
	// Zero selects a default.
	PatternCacheSize int
}

// Session is one process's handle on a study's cache files. It owns all
// the state the original implementation kept in file-scope statics:
// append watermarks, per-class anomaly logging, and the decoded-pattern
// cache. A session is cheap; create one per study run and pass it through
// the call chain. Methods are safe for use from one goroutine at a time,
// matching the engine's synchronous invocation model.
type Session struct {
	cfg     Config
	runID   string
	locks   study.RunLock
	terrain *study.TerrainState
	log     zerolog.Logger

	patterns *patternCache

	// watermarks holds, per contribution file path, the checksum chain
	// value observed at load time. Saves refuse to append without one.
	watermarks map[string]uint32

	// anomalyMu guards anomalies: soft-invalidation classes already
	// logged this run, so each class is reported at most once.
	anomalyMu sync.Mutex
	anomalies map[string]struct{}
}

// NewSession creates a cache session for one study run. terrain is owned
// by the caller; the session reads it for staleness checks and header
// writes but mutates it only through deltas the caller applies.
func NewSession(cfg Config, locks study.RunLock, terrain *study.TerrainState) *Session {
	runID := uuid.New().String()
	return &Session{
		cfg:        cfg,
		runID:      runID,
		locks:      locks,
		terrain:    terrain,
		log:        logging.With().Str("component", "cache").Str("run_id", runID).Logger(),
		patterns:   newPatternCache(cfg.PatternCacheSize),
		watermarks: make(map[string]uint32),
		anomalies:  make(map[string]struct{}),
	}
}

// RunID returns the unique identifier of this session's run, carried in
// every log event the session emits.
func (s *Session) RunID() string {
	return s.runID
}

// fingerprintPath and friends bound to the session's namespace.

func (s *Session) fingerprintPath(src study.SourceKey) string {
	return fingerprintPath(s.cfg.RootDir, s.cfg.DatabaseID, s.cfg.StudyKey, src)
}

func (s *Session) coveragePath(src study.SourceKey) string {
	return coveragePath(s.cfg.RootDir, s.cfg.DatabaseID, s.cfg.StudyKey, src)
}

func (s *Session) contributionPath(src, desired study.SourceKey) string {
	return contributionPath(s.cfg.RootDir, s.cfg.DatabaseID, s.cfg.StudyKey,
		s.cfg.GridMode, src, desired)
}

// CoverageExists reports whether a complete coverage cache file exists
// for the source. It is a hint only: the file may still fail validation
// when actually loaded.
func (s *Session) CoverageExists(src study.SourceKey) bool {
	_, err := os.Stat(s.coveragePath(src))
	return err == nil
}

// logAnomalyOnce emits a warning for a soft-invalidation anomaly class at
// most once per run. Routine invalidations (counter bumps) are expected
// and logged at debug; the classes routed here should not normally occur.
func (s *Session) logAnomalyOnce(class string, build func(*zerolog.Event)) {
	s.anomalyMu.Lock()
	_, seen := s.anomalies[class]
	if !seen {
		s.anomalies[class] = struct{}{}
	}
	s.anomalyMu.Unlock()
	if seen {
		return
	}
	ev := s.log.Warn().Str("anomaly", class)
	build(ev)
	ev.Msg("cache anomaly")
}

// DiscardSource deletes every cache file for a source: fingerprint,
// coverage, and all contribution files. Called when live parameters are
// judged incompatible with any cached value, on fresh runs, and by the
// CLI purge command. Missing files are not an error.
func (s *Session) DiscardSource(src study.SourceKey) error {
	anchor, err := s.anchorExclusive(src)
	if err == nil {
		defer anchor.Close()
	}
	// Without an anchor (directory missing, permissions) fall through and
	// remove whatever is removable; deletion must not be blockable by the
	// very damage it cleans up.
	metrics.CacheDiscards.Inc()
	return s.removeFamily(src)
}

// removeFamily unlinks all of a source's cache files. Callers hold the
// anchor lock when one can be had.
func (s *Session) removeFamily(src study.SourceKey) error {
	var firstErr error
	remove := func(path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", path, err)
			}
		}
	}

	remove(s.coveragePath(src))
	for _, pat := range contributionGlob(s.cfg.RootDir, s.cfg.DatabaseID, s.cfg.StudyKey, src) {
		matches, err := filepath.Glob(pat)
		if err != nil {
			continue
		}
		for _, m := range matches {
			remove(m)
			delete(s.watermarks, m)
		}
	}
	// Anchor last, so a racing reader that already holds it sees the rest
	// of the family gone rather than a fingerprint with missing data.
	remove(s.fingerprintPath(src))
	return firstErr
}

// removeFile unlinks a single cache file, logging at error level with the
// corruption cause. Used on hard-corruption paths.
func (s *Session) removeFile(path, kind, cause string) {
	metrics.RecordCorruption(kind, cause)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Error().Err(err).Str("path", path).Msg("failed to remove corrupt cache file")
		return
	}
	delete(s.watermarks, path)
}
