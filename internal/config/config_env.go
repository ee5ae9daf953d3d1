// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package config

import "strings"

// envTransformFunc maps environment variable names onto koanf config
// paths. Unmapped variables are dropped so an unrelated environment
// cannot pollute the configuration.
//
// Examples:
//   - PROPSTUDY_CACHE_ROOT -> cache.root_dir
//   - PROPSTUDY_DATABASE_ID -> cache.database_id
//   - PROPSTUDY_LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"propstudy_cache_root":         "cache.root_dir",
		"propstudy_database_id":        "cache.database_id",
		"propstudy_pattern_cache_size": "cache.pattern_cache_size",

		"propstudy_log_level":     "logging.level",
		"propstudy_log_format":    "logging.format",
		"propstudy_log_caller":    "logging.caller",
		"propstudy_log_timestamp": "logging.timestamp",

		"propstudy_metrics_enabled": "metrics.enabled",
		"propstudy_metrics_listen":  "metrics.listen",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
