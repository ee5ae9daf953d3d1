// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package study

// RunLock exposes the two predicates the result cache consumes from the
// database-backed study lock state machine. The cache never inspects lock
// state beyond these: holding at least a shared run lock is what
// guarantees every process sharing the cache files sees an identical
// snapshot of study inputs.
type RunLock interface {
	// HoldsRunLock reports whether this process currently holds at least
	// a shared run lock on the study. Cache writes are refused without it.
	HoldsRunLock() bool

	// IsFreshRun reports whether this run was started against modified
	// study inputs, requiring full invalidation of any cached state.
	IsFreshRun() bool
}

// StaticRunLock is a RunLock with fixed answers. The CLI uses it for
// offline cache maintenance, and tests use it to drive both predicates.
type StaticRunLock struct {
	Held  bool
	Fresh bool
}

func (s StaticRunLock) HoldsRunLock() bool { return s.Held }
func (s StaticRunLock) IsFreshRun() bool   { return s.Fresh }

// TerrainState is the terrain-database generation a run works against.
// Requested records whether this run asked for non-standard terrain
// extraction; Used records whether any result (computed or restored from
// cache) actually depended on non-standard terrain.
type TerrainState struct {
	GenerationID int64
	Requested    bool
	Used         bool
}

// TerrainDelta is the terrain side effect of a cache load: a fresh cache
// hit whose stored header says the cached results used non-standard
// terrain must propagate that dependence into the run. Loads return the
// delta instead of mutating shared state; the caller applies it.
type TerrainDelta struct {
	UsedNonStandard bool
}

// Apply folds a load delta into the run's terrain state.
func (t *TerrainState) Apply(d TerrainDelta) {
	if d.UsedNonStandard {
		t.Used = true
	}
}
