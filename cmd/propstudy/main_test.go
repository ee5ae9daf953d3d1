// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package main

import (
	"testing"

	"github.com/spectrumlab/propstudy/internal/config"
)

func TestParseCacheFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.RootDir = "/var/cache/propstudy"
	cfg.Cache.DatabaseID = "lms_2026_06"

	f, err := parseCacheFlags(cfg, "inspect", []string{"-study", "12", "-source", "1047103"})
	if err != nil {
		t.Fatalf("parseCacheFlags: %v", err)
	}
	if f.root != "/var/cache/propstudy" || f.db != "lms_2026_06" {
		t.Errorf("config defaults not applied: %+v", f)
	}
	if f.study != 12 || f.source != 1047103 {
		t.Errorf("flags not parsed: %+v", f)
	}

	if _, err := parseCacheFlags(cfg, "inspect", []string{"-source", "1"}); err == nil {
		t.Error("missing -study accepted")
	}
	cfg.Cache.DatabaseID = ""
	if _, err := parseCacheFlags(cfg, "inspect", []string{"-study", "1", "-source", "1"}); err == nil {
		t.Error("missing database id accepted")
	}
}

func TestFlagOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.RootDir = "/var/cache/propstudy"
	cfg.Cache.DatabaseID = "lms_2026_06"

	f, err := parseCacheFlags(cfg, "purge", []string{
		"-root", "/tmp/other", "-db", "cdbs_2019", "-study", "3", "-source", "8"})
	if err != nil {
		t.Fatalf("parseCacheFlags: %v", err)
	}
	if f.root != "/tmp/other" || f.db != "cdbs_2019" {
		t.Errorf("overrides not applied: %+v", f)
	}
}
