// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

// Package metrics provides Prometheus instrumentation for the study
// engine. The result cache is the main producer: hit/stale/miss rates tell
// an operator whether repeated runs are actually avoiding recomputation,
// and the corruption and skip counters surface concurrency trouble that
// never reaches the error path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLoads counts cache load attempts by cache kind
	// ("fingerprint", "coverage", "contribution") and outcome
	// ("fresh", "stale", "absent", "corrupt").
	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstudy_cache_loads_total",
			Help: "Total result cache load attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CacheSaves counts cache save attempts by kind and outcome
	// ("written", "skipped", "failed").
	CacheSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstudy_cache_saves_total",
			Help: "Total result cache save attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CacheCorruption counts hard-corruption events by kind and cause
	// ("short_read", "bad_magic", "checksum", "end_marker", "sequence",
	// "duplicate_point").
	CacheCorruption = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstudy_cache_corruption_total",
			Help: "Total cache files found corrupt, by kind and cause",
		},
		[]string{"kind", "cause"},
	)

	// CacheDiscards counts whole-family cache deletions per source.
	CacheDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propstudy_cache_discards_total",
			Help: "Total per-source cache family deletions",
		},
	)

	// AppendRaceSkips counts contribution saves forfeited because another
	// process appended to the file after this process last read it.
	AppendRaceSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propstudy_cache_append_race_skips_total",
			Help: "Total contribution cache saves skipped due to a foreign writer",
		},
	)

	// CacheBytesWritten counts bytes written to cache files by kind.
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstudy_cache_bytes_written_total",
			Help: "Total bytes written to result cache files by kind",
		},
		[]string{"kind"},
	)

	// CacheRecordsRestored counts grid fields restored from cache by kind.
	CacheRecordsRestored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstudy_cache_records_restored_total",
			Help: "Total cell records restored from result cache files by kind",
		},
		[]string{"kind"},
	)
)

// RecordLoad records a cache load outcome.
func RecordLoad(kind, outcome string) {
	CacheLoads.WithLabelValues(kind, outcome).Inc()
}

// RecordSave records a cache save outcome.
func RecordSave(kind, outcome string) {
	CacheSaves.WithLabelValues(kind, outcome).Inc()
}

// RecordCorruption records a hard-corruption event.
func RecordCorruption(kind, cause string) {
	CacheCorruption.WithLabelValues(kind, cause).Inc()
}

// RecordBytesWritten adds to the written-bytes counter for a cache kind.
func RecordBytesWritten(kind string, n int) {
	if n > 0 {
		CacheBytesWritten.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordRestored adds to the restored-records counter for a cache kind.
func RecordRestored(kind string, n int) {
	if n > 0 {
		CacheRecordsRestored.WithLabelValues(kind).Add(float64(n))
	}
}
