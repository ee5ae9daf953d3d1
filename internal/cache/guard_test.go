// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"errors"
	"testing"
)

func TestAnchorSharedMissing(t *testing.T) {
	s := newTestSession(testConfig(t), heldLock())
	if _, err := s.anchorShared(9); !errors.Is(err, ErrNotCached) {
		t.Fatalf("err = %v, want ErrNotCached", err)
	}
}

func TestAnchorExclusiveCreates(t *testing.T) {
	s := newTestSession(testConfig(t), heldLock())
	anchor, err := s.anchorExclusive(9)
	if err != nil {
		t.Fatalf("anchorExclusive: %v", err)
	}
	if err := anchor.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	mustStat(t, s.fingerprintPath(9))

	// The empty anchor is now visible to readers; its content fails
	// validation as a short read, not as a missing cache.
	shared, err := s.anchorShared(9)
	if err != nil {
		t.Fatalf("anchorShared after create: %v", err)
	}
	defer shared.Close()
}

func TestAnchorCloseNil(t *testing.T) {
	var l *anchorLock
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
