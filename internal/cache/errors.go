// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import "fmt"

// Errors
var (
	// ErrNotCached is returned when no cache file exists for a request.
	// This is the routine miss outcome, not a failure.
	ErrNotCached = fmt.Errorf("not cached")

	// ErrCacheCorrupt indicates a cache file failed a structural check:
	// short read, bad magic, broken checksum chain, missing end marker, or
	// an out-of-sequence composite sub-record. The offending file has been
	// deleted; the caller recomputes.
	ErrCacheCorrupt = fmt.Errorf("cache file corrupt")

	// ErrCacheInconsistent indicates cached content contradicts live study
	// state in a way the external study lock should have made impossible:
	// a parameter mismatch after modification counters matched, or a
	// duplicate field for a contributor/point pair. Results for this run
	// can no longer be trusted.
	ErrCacheInconsistent = fmt.Errorf("cache inconsistent with study state")
)

// Status is the outcome of a fingerprint cache load.
type Status int

const (
	// StatusAbsent means no usable cache file exists for the source.
	StatusAbsent Status = iota

	// StatusStale means cached state existed but no longer matches the
	// live source; the cache family has been discarded.
	StatusStale

	// StatusFresh means the cached snapshot matches the live source and
	// its derived fields and data blocks have been restored.
	StatusFresh
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusStale:
		return "stale"
	case StatusFresh:
		return "fresh"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
