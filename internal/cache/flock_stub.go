// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

//go:build !unix

package cache

import "os"

// Non-unix builds run without advisory locks. Single-process use stays
// correct (the append watermark still detects foreign writers); sharing a
// cache directory between processes on these platforms is unsupported.

func flockShared(*os.File) error    { return nil }
func flockExclusive(*os.File) error { return nil }
func funlock(*os.File) error        { return nil }
