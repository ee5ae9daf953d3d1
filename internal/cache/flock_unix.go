// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

//go:build unix

package cache

import (
	"os"

	"golang.org/x/sys/unix"
)

// Advisory per-file locks, shared for reads and exclusive for writes.
// Calls block until the lock is granted; the cache never polls or times
// out, because write critical sections are short and the append-race
// watermark keeps writers from serializing behind each other's full
// computation.

func flockShared(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_SH)
}

func flockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
