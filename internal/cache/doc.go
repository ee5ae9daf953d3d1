// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

/*
Package cache implements the flat-file result cache that lets repeated or
concurrent study runs skip terrain and propagation work already done for a
source. The cache is advisory only: a missed or rejected entry never
changes a study's answer, only the cost of producing it.

# Cache kinds

Each source owns up to three files under the cache root, segmented by
database and study identifiers:

  - Fingerprint (.fpt): a whole-record snapshot of every source parameter
    that feeds computation, plus derived geometry. Invalidated in full on
    any mismatch; everything else hangs off its validity.
  - Coverage (.cov): the complete set of cell records for the source's own
    service area. Read all-or-nothing, rewritten wholesale on save, sealed
    by a trailing magic number. Partial content is corruption.
  - Contribution (.fld): the append-only record of signals this source
    delivers into other sources' study areas. May be incomplete forever;
    grows by guarded appends and is merged opportunistically on load.

# Concurrency

Multiple independent OS processes share these files. An external,
database-backed study lock guarantees they all see an identical snapshot
of study inputs; given that, file-level coordination needs only two
mechanisms. Every operation first takes an advisory lock on the source's
fingerprint file (the anchor): shared to read, exclusive to write, so the
fingerprint serializes a source's whole cache family. On top of that the
contribution cache carries a rolling per-record checksum; a writer
compares the checksum of the last record on disk against the value it saw
at load time (the watermark) and silently forfeits its append when they
differ, trading duplicate computation for never storing a duplicate and
never blocking behind another writer.

# Failure handling

A missing file is a routine miss. Version, terrain-generation, or
modification-counter mismatches silently invalidate and delete cached
state. Short reads, bad magic, checksum breaks, a missing end marker, or
out-of-sequence composite sub-records are corruption: logged, the
offending files deleted, the run recomputes. A parameter mismatch after
the modification counters already matched means the external single-writer
contract was violated; that one is propagated to the caller as
ErrCacheInconsistent because results can no longer be trusted.
*/
package cache
