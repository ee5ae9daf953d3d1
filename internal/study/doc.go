// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

/*
Package study defines the domain model shared by the study engine and the
result cache: transmitting sources, antenna patterns, study-point grids,
and the small pieces of run state the cache consumes.

# Sources

A Source describes one transmitting facility: its geographic placement,
electrical parameters, antenna patterns, and service-area definition. A
composite (DTS) source additionally carries a reference facility and an
ordered list of secondary transmitters; the order of that list is part of
the source's identity and must never be permuted once results exist.

# Grid

The Grid is the in-memory result container for one study run: study points
keyed by cell indices, each holding the signal fields contributed by the
sources evaluated so far. The result cache reads the grid to skip points it
already knows and writes computed fields back into it.

# Run state

RunLock exposes the two predicates the cache needs from the external,
database-backed study lock machinery. TerrainState carries the terrain
database generation the run is working against; cache loads report terrain
dependence back to the caller as a TerrainDelta rather than mutating shared
state directly.
*/
package study
