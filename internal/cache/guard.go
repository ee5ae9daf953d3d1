// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spectrumlab/propstudy/internal/study"
)

// anchorLock holds an advisory lock on a source's fingerprint file. Every
// cache operation for a source, including ones that only touch a cell
// cache file, goes through an anchor lock, making the fingerprint file
// the single serialization point for the source's whole cache family.
type anchorLock struct {
	f *os.File
}

// anchorShared opens the fingerprint file read-only and takes a shared
// advisory lock. A missing fingerprint file is a cache miss for the whole
// family, reported as ErrNotCached.
func (s *Session) anchorShared(src study.SourceKey) (*anchorLock, error) {
	f, err := os.Open(s.fingerprintPath(src))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("open anchor: %w", err)
	}
	if err := flockShared(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock anchor shared: %w", err)
	}
	return &anchorLock{f: f}, nil
}

// anchorExclusive opens (creating if necessary) the fingerprint file
// read-write and takes an exclusive advisory lock. Creation makes the
// cache directory on demand; an anchor file created by a cell-cache write
// before any fingerprint save is simply an empty fingerprint, which later
// loads reject as a short read and clean up.
func (s *Session) anchorExclusive(src study.SourceKey) (*anchorLock, error) {
	path := s.fingerprintPath(src)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open anchor: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock anchor exclusive: %w", err)
	}
	return &anchorLock{f: f}, nil
}

// File returns the locked fingerprint file. Fingerprint load and save
// read and write through this handle; cell-cache operations open their
// own data file while the anchor is held.
func (l *anchorLock) File() *os.File {
	return l.f
}

// Close releases the advisory lock and closes the file. Safe to call on
// a nil receiver so callers can defer unconditionally.
func (l *anchorLock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Closing the descriptor releases a flock-style lock; the explicit
	// unlock keeps the release immediate even where descriptors are
	// duplicated.
	_ = funlock(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
