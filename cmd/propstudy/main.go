// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

// Package main is the operational CLI for the Propstudy result cache.
//
// The study engine itself runs embedded in the scheduling service; this
// tool gives operators offline access to the flat-file cache:
//
//	propstudy inspect -study 12 -source 1047103   # JSON cache summary
//	propstudy purge   -study 12 -source 1047103   # delete a cache family
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, a config file (propstudy.yaml
// or $PROPSTUDY_CONFIG), then built-in defaults. The -root and -db flags
// override the configured cache location for one invocation.
//
// Inspect is read-only and takes only shared locks, so it is safe to run
// against a cache that live study processes are using. Purge takes the
// exclusive anchor and deletes the source's fingerprint, coverage, and
// contribution files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/spectrumlab/propstudy/internal/cache"
	"github.com/spectrumlab/propstudy/internal/config"
	"github.com/spectrumlab/propstudy/internal/logging"
	"github.com/spectrumlab/propstudy/internal/study"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: %v\n", err)
		return 1
	}
	logging.Init(cfg.Logging)

	switch args[0] {
	case "inspect":
		return cmdInspect(cfg, args[1:])
	case "purge":
		return cmdPurge(cfg, args[1:])
	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  propstudy inspect -study <key> -source <key> [-root <dir>] [-db <id>]
  propstudy purge   -study <key> -source <key> [-root <dir>] [-db <id>]`)
}

// cacheFlags holds the flags shared by every subcommand.
type cacheFlags struct {
	root   string
	db     string
	study  int
	source int
}

func parseCacheFlags(cfg *config.Config, name string, args []string) (*cacheFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &cacheFlags{}
	fs.StringVar(&f.root, "root", cfg.Cache.RootDir, "cache root directory")
	fs.StringVar(&f.db, "db", cfg.Cache.DatabaseID, "station database identifier")
	fs.IntVar(&f.study, "study", 0, "study key")
	fs.IntVar(&f.source, "source", 0, "source key")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.study == 0 || f.source == 0 {
		return nil, fmt.Errorf("%s: -study and -source are required", name)
	}
	if f.db == "" {
		return nil, fmt.Errorf("%s: no database id (set -db or PROPSTUDY_DATABASE_ID)", name)
	}
	return f, nil
}

func newSession(f *cacheFlags, lock study.RunLock) *cache.Session {
	return cache.NewSession(cache.Config{
		RootDir:    f.root,
		DatabaseID: f.db,
		StudyKey:   int32(f.study),
	}, lock, &study.TerrainState{})
}

func cmdInspect(cfg *config.Config, args []string) int {
	f, err := parseCacheFlags(cfg, "inspect", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: %v\n", err)
		return 2
	}

	// Inspect never writes; the lock predicates are irrelevant.
	s := newSession(f, study.StaticRunLock{})
	rep, err := s.Inspect(study.SourceKey(f.source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: inspect source %d: %v\n", f.source, err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: %v\n", err)
		return 1
	}
	return 0
}

func cmdPurge(cfg *config.Config, args []string) int {
	f, err := parseCacheFlags(cfg, "purge", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: %v\n", err)
		return 2
	}

	s := newSession(f, study.StaticRunLock{Held: true})
	if err := s.DiscardSource(study.SourceKey(f.source)); err != nil {
		fmt.Fprintf(os.Stderr, "propstudy: purge source %d: %v\n", f.source, err)
		return 1
	}
	logging.Info().
		Int("study", f.study).
		Int("source", f.source).
		Msg("cache family purged")
	return 0
}
