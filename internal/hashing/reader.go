// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hashing

import (
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// VerifyingReader wraps a reader, accumulating an xxh64 hash as bytes
// flow through it. On the read call that observes EOF it compares the
// accumulated hash against Expected and returns an error if they
// differ, so a copy is hash-checked in one pass without a second read
// of the output. internal/downloadcache uses it for downloads; the
// internal/transform executors instead re-read the file they wrote.
type VerifyingReader struct {
	inner    io.Reader
	expected H
	state    *xxhash.Digest
	done     bool
}

// NewVerifyingReader wraps inner; expected is compared against the
// hash accumulated over everything read before EOF.
func NewVerifyingReader(inner io.Reader, expected H) *VerifyingReader {
	return &VerifyingReader{inner: inner, expected: expected, state: xxhash.New()}
}

func (r *VerifyingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	n, err := r.inner.Read(p)
	if n > 0 {
		_, _ = r.state.Write(p[:n])
	}
	if err == io.EOF {
		r.done = true
		got := H(r.state.Sum64())
		if got != r.expected {
			return n, errors.Errorf("hash mismatch: got %s, want %s", Encode(got), Encode(r.expected))
		}
	}
	return n, err
}

// SizeValidatingReader errors at EOF unless exactly Expected bytes were
// read. Composed with VerifyingReader when a directive needs both
// checks (most do).
type SizeValidatingReader struct {
	inner    io.Reader
	expected int64
	total    int64
	done     bool
}

func NewSizeValidatingReader(inner io.Reader, expected int64) *SizeValidatingReader {
	return &SizeValidatingReader{inner: inner, expected: expected}
}

func (r *SizeValidatingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	n, err := r.inner.Read(p)
	r.total += int64(n)
	if err == io.EOF {
		r.done = true
		if r.total != r.expected {
			return n, errors.Errorf("size mismatch: got %d bytes, want %d", r.total, r.expected)
		}
	}
	return n, err
}
