// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package progress

import "io"

// CountingReader reports every byte read through it to a Counters,
// letting stream-copy call sites (directive execution)
// attribute progress without restructuring their io.Copy loops.
type CountingReader struct {
	inner    io.Reader
	counters *Counters
}

// NewCountingReader wraps inner so each Read call feeds counters.
func NewCountingReader(inner io.Reader, counters *Counters) *CountingReader {
	return &CountingReader{inner: inner, counters: counters}
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.counters.AddBytes(int64(n))
	}
	return n, err
}
