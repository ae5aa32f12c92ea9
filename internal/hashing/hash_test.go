// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hashing

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 4096), 0o644))

	h1, err := HashFile(path)
	require.NoError(t, err)
	h2, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashFileDiffersOnContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.bin")
	pathB := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(pathA, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("hellp"), 0o644))

	hA, err := HashFile(pathA)
	require.NoError(t, err)
	hB, err := HashFile(pathB)
	require.NoError(t, err)
	assert.NotEqual(t, hA, hB)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []H{0, 1, 0xFFFFFFFFFFFFFFFF, 0x0102030405060708}
	for _, h := range cases {
		s := Encode(h)
		assert.Len(t, s, 12)
		got, err := Decode(s)
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
}

func TestCheckSizeAndHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	data := []byte("some content to hash")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)

	require.NoError(t, CheckSize(path, int64(len(data))))
	require.Error(t, CheckSize(path, int64(len(data))+1))
	require.NoError(t, CheckHash(path, h))
	require.Error(t, CheckHash(path, h+1))
}

func TestVerifyingReaderDetectsMismatch(t *testing.T) {
	data := []byte("stream me through the verifier")
	good, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)

	r := NewVerifyingReader(bytes.NewReader(data), good)
	_, err = io.ReadAll(r)
	require.NoError(t, err)

	r = NewVerifyingReader(bytes.NewReader(data), good+1)
	_, err = io.ReadAll(r)
	require.Error(t, err)
}

func TestSizeValidatingReaderDetectsMismatch(t *testing.T) {
	data := []byte("twelve bytes")
	r := NewSizeValidatingReader(bytes.NewReader(data), int64(len(data)))
	_, err := io.ReadAll(r)
	require.NoError(t, err)

	r = NewSizeValidatingReader(bytes.NewReader(data), int64(len(data))+5)
	_, err = io.ReadAll(r)
	require.Error(t, err)
}
