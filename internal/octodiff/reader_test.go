// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package octodiff

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDelta assembles a minimal valid OCTODELTA stream out of commands,
// standing in for an external octodiff encoder in these tests.
func buildDelta(t *testing.T, sourceHash [20]byte, commands ...func(*bytes.Buffer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(binaryVersion)
	buf.WriteByte(byte(len(hashAlgorithm)))
	buf.WriteString(hashAlgorithm)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(hashLength))
	buf.Write(lenBuf[:])
	buf.Write(sourceHash[:])
	buf.Write(endOfMetadata[:])
	for _, cmd := range commands {
		cmd(&buf)
	}
	return buf.Bytes()
}

func writeCopy(start, length int64) func(*bytes.Buffer) {
	return func(buf *bytes.Buffer) {
		buf.WriteByte(opCopy)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(start))
		buf.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], uint64(length))
		buf.Write(b[:])
	}
}

func writeWrite(data []byte) func(*bytes.Buffer) {
	return func(buf *bytes.Buffer) {
		buf.WriteByte(opWrite)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(len(data)))
		buf.Write(b[:])
		buf.Write(data)
	}
}

func TestApplyPureWrite(t *testing.T) {
	source := bytes.NewReader(bytes.Repeat([]byte{0xAA}, 16))
	delta := buildDelta(t, [20]byte{}, writeWrite([]byte("hello world")))

	r, err := New(source, bytes.NewReader(delta))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestApplyMixedCopyWrite(t *testing.T) {
	source := bytes.NewReader([]byte("0123456789ABCDEF"))
	delta := buildDelta(t, [20]byte{},
		writeCopy(0, 4),     // "0123"
		writeWrite([]byte("-")),
		writeCopy(10, 6), // "ABCDEF"
	)

	r, err := New(source, bytes.NewReader(delta))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "0123-ABCDEF", string(got))
}

func TestApplyLargeRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte{0xAA}, 1024)
	dst := bytes.Repeat([]byte{0x55}, 1024)

	delta := buildDelta(t, [20]byte{}, writeWrite(dst))
	r, err := New(bytes.NewReader(src), bytes.NewReader(delta))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
}

func TestNegativeCopyLengthIsFatal(t *testing.T) {
	source := bytes.NewReader([]byte("0123456789"))
	delta := buildDelta(t, [20]byte{}, writeCopy(0, -1))

	_, err := New(source, bytes.NewReader(delta))
	require.Error(t, err)
}

func TestBadMagicIsRejected(t *testing.T) {
	_, err := New(bytes.NewReader(nil), bytes.NewReader([]byte("NOTDELTA!!")))
	require.Error(t, err)
}

func TestReadsOneCommandAtATime(t *testing.T) {
	source := bytes.NewReader([]byte("ABCDEFGH"))
	delta := buildDelta(t, [20]byte{}, writeCopy(0, 4), writeCopy(4, 4))

	r, err := New(source, bytes.NewReader(delta))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "AB", string(buf[:n]))
}
