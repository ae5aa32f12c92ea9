// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hashing implements the content-hash primitives the installer
// verifies every produced file against: a streaming xxh64 over a small
// fixed buffer, size/hash checks, and the base64 rendering of a 64-bit
// hash used throughout manifests and directive identities.
package hashing

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// bufferSize is the fixed streaming buffer every hashing copy uses.
const bufferSize = 64 * 1024

// H is a 64-bit content hash. Equality is the sole identity check for a
// verified file (see the whitelist exception in internal/transform).
type H uint64

// HashFile streams path through xxh64 (seed 0) and never seeks.
func HashFile(path string) (H, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(err, "%s does not exist", path)
		}
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	h, err := HashReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "hashing %s", path)
	}
	return h, nil
}

// HashReader streams r through xxh64 (seed 0) using a 64 KiB buffer.
func HashReader(r io.Reader) (H, error) {
	d := xxhash.New()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(d, r, buf); err != nil {
		return 0, err
	}
	return H(d.Sum64()), nil
}

// Encode renders a 64-bit hash as 8-byte little-endian, base64 standard
// alphabet (always 12 characters, including one '=' pad byte).
func Encode(h H) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(h))
	return base64.StdEncoding.EncodeToString(b[:])
}

// Decode parses the base64 rendering produced by Encode.
func Decode(s string) (H, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, errors.Wrap(err, "decoding base64 hash")
	}
	if len(b) != 8 {
		return 0, errors.Errorf("decoded hash has %d bytes, want 8", len(b))
	}
	return H(binary.LittleEndian.Uint64(b)), nil
}

// CheckSize errors unless path's size on disk equals expected.
func CheckSize(path string, expected int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(err, "%s does not exist", path)
		}
		return errors.Wrapf(err, "statting %s", path)
	}
	if info.Size() != expected {
		return errors.Errorf("size mismatch for %s: got %d, want %d", path, info.Size(), expected)
	}
	return nil
}

// CheckHash errors unless path hashes to expected.
func CheckHash(path string, expected H) error {
	got, err := HashFile(path)
	if err != nil {
		return err
	}
	if got != expected {
		return errors.Errorf("hash mismatch for %s: got %s, want %s", path, Encode(got), Encode(expected))
	}
	return nil
}

// Check runs both CheckSize and CheckHash.
func Check(path string, expectedSize int64, expected H) error {
	if err := CheckSize(path, expectedSize); err != nil {
		return err
	}
	return CheckHash(path, expected)
}
