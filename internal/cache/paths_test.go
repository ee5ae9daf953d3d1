// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"path/filepath"
	"testing"

	"github.com/spectrumlab/propstudy/internal/study"
)

func TestCachePaths(t *testing.T) {
	const root, db = "/var/cache/propstudy", "lms_2026_06"

	want := filepath.Join(root, db, "stu_12", "src_9.fpt")
	if got := fingerprintPath(root, db, 12, 9); got != want {
		t.Errorf("fingerprintPath = %s, want %s", got, want)
	}
	want = filepath.Join(root, db, "stu_12", "src_9.cov")
	if got := coveragePath(root, db, 12, 9); got != want {
		t.Errorf("coveragePath = %s, want %s", got, want)
	}
}

func TestContributionPathByGridMode(t *testing.T) {
	const root, db = "/var/cache/propstudy", "lms_2026_06"

	want := filepath.Join(root, db, "stu_12", "src_9.fld")
	if got := contributionPath(root, db, 12, study.GridGlobal, 9, 3); got != want {
		t.Errorf("global contributionPath = %s, want %s", got, want)
	}
	want = filepath.Join(root, db, "stu_12", "src_9_for_3.fld")
	if got := contributionPath(root, db, 12, study.GridLocal, 9, 3); got != want {
		t.Errorf("local contributionPath = %s, want %s", got, want)
	}
}

func TestContributionGlobCoversBothModes(t *testing.T) {
	const root, db = "/var/cache/propstudy", "lms_2026_06"

	patterns := contributionGlob(root, db, 12, 9)
	files := []string{
		contributionPath(root, db, 12, study.GridGlobal, 9, 3),
		contributionPath(root, db, 12, study.GridLocal, 9, 3),
		contributionPath(root, db, 12, study.GridLocal, 9, 41),
	}
	for _, f := range files {
		matched := false
		for _, pat := range patterns {
			ok, err := filepath.Match(pat, f)
			if err != nil {
				t.Fatalf("bad glob %q: %v", pat, err)
			}
			matched = matched || ok
		}
		if !matched {
			t.Errorf("no glob pattern matches %s", f)
		}
	}

	// A different source's files must not match.
	other := contributionPath(root, db, 12, study.GridGlobal, 10, 3)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, other); ok {
			t.Errorf("glob %q matches foreign file %s", pat, other)
		}
	}
}
