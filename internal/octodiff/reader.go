// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package octodiff implements a streaming reader for the octodiff
// binary-delta format as a plain Go io.Reader state machine.
package octodiff

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	magic         = "OCTODELTA"
	binaryVersion = 0x01
	hashAlgorithm = "SHA1"
	hashLength    = 20

	opCopy  = 0x60
	opWrite = 0x80
)

var endOfMetadata = [3]byte{'>', '>', '>'}

// Metadata is the fixed header every delta begins with. SourceHash is
// read but never verified here; the enclosing directive verifies the
// output instead. The hash length field must equal hashLength, and any
// other value is rejected.
type Metadata struct {
	SourceHash [hashLength]byte
}

// Reader pulls patched bytes out of a source (random-access) and a
// delta (sequential) stream. It keeps exactly one "current command"
// with a remaining-length counter and never buffers more than one
// command at a time.
type Reader struct {
	Metadata Metadata

	source io.ReadSeeker
	delta  io.Reader

	current   byte // opCopy, opWrite, or 0 when no command is active
	remaining int64
	exhausted bool
}

// New reads the delta's metadata header and returns a Reader positioned
// at the first command. source must support seeking; delta is read
// sequentially and is never seeked.
func New(source io.ReadSeeker, delta io.Reader) (*Reader, error) {
	meta, err := readMetadata(delta)
	if err != nil {
		return nil, errors.Wrap(err, "reading octodiff metadata")
	}
	r := &Reader{Metadata: meta, source: source, delta: delta}
	if err := r.advance(); err != nil && err != io.EOF {
		return nil, err
	}
	return r, nil
}

func readMetadata(delta io.Reader) (Metadata, error) {
	var meta Metadata

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(delta, magicBuf); err != nil {
		return meta, errors.Wrap(err, "reading magic")
	}
	if string(magicBuf) != magic {
		return meta, errors.Errorf("bad magic: got %q, want %q", magicBuf, magic)
	}

	var version [1]byte
	if _, err := io.ReadFull(delta, version[:]); err != nil {
		return meta, errors.Wrap(err, "reading version")
	}
	if version[0] != binaryVersion {
		return meta, errors.Errorf("binary version mismatch: got 0x%02x, want 0x%02x", version[0], binaryVersion)
	}

	var nameLen [1]byte
	if _, err := io.ReadFull(delta, nameLen[:]); err != nil {
		return meta, errors.Wrap(err, "reading hash algorithm name length")
	}
	nameBuf := make([]byte, nameLen[0])
	if _, err := io.ReadFull(delta, nameBuf); err != nil {
		return meta, errors.Wrap(err, "reading hash algorithm name")
	}
	if string(nameBuf) != hashAlgorithm {
		return meta, errors.Errorf("hash algorithm mismatch: got %q, want %q", nameBuf, hashAlgorithm)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(delta, lenBuf[:]); err != nil {
		return meta, errors.Wrap(err, "reading hash length")
	}
	hashLen := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if hashLen != hashLength {
		return meta, errors.Errorf("hash length mismatch: got %d, want %d", hashLen, hashLength)
	}

	if _, err := io.ReadFull(delta, meta.SourceHash[:]); err != nil {
		return meta, errors.Wrap(err, "reading source hash")
	}

	var eof [3]byte
	if _, err := io.ReadFull(delta, eof[:]); err != nil {
		return meta, errors.Wrap(err, "reading end-of-metadata marker")
	}
	if eof != endOfMetadata {
		return meta, errors.Errorf("bad end-of-metadata marker: got %q, want %q", eof, endOfMetadata)
	}

	return meta, nil
}

// advance reads the next opcode and prepares the "current command"
// state. It returns io.EOF when no further opcode can be read.
func (r *Reader) advance() error {
	var op [1]byte
	if _, err := io.ReadFull(r.delta, op[:]); err != nil {
		r.current = 0
		r.remaining = 0
		r.exhausted = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return errors.Wrap(err, "reading opcode")
	}

	switch op[0] {
	case opCopy:
		start, length, err := readTwoInt64(r.delta)
		if err != nil {
			return errors.Wrap(err, "reading COPY command")
		}
		if length <= 0 {
			return errors.Errorf("COPY command has non-positive length %d", length)
		}
		if _, err := r.source.Seek(start, io.SeekStart); err != nil {
			return errors.Wrap(err, "seeking source for COPY command")
		}
		r.current = opCopy
		r.remaining = length
	case opWrite:
		length, err := readInt64(r.delta)
		if err != nil {
			return errors.Wrap(err, "reading WRITE command")
		}
		if length <= 0 {
			return errors.Errorf("WRITE command has non-positive length %d", length)
		}
		r.current = opWrite
		r.remaining = length
	default:
		return errors.Errorf("unknown opcode 0x%02x", op[0])
	}
	return nil
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func readTwoInt64(r io.Reader) (int64, int64, error) {
	a, err := readInt64(r)
	if err != nil {
		return 0, 0, err
	}
	b, err := readInt64(r)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// Read implements io.Reader, pulling from the current command's source
// (COPY) or the delta itself (WRITE), bounded by the command's
// remaining-length counter, advancing to the next command when it
// hits zero.
func (r *Reader) Read(p []byte) (int, error) {
	if r.exhausted && r.current == 0 {
		return 0, io.EOF
	}
	if r.current == 0 {
		if err := r.advance(); err != nil {
			return 0, err
		}
	}

	want := int64(len(p))
	if want > r.remaining {
		want = r.remaining
	}
	if want == 0 {
		return 0, nil
	}

	var n int
	var err error
	switch r.current {
	case opCopy:
		n, err = io.ReadFull(r.source, p[:want])
	case opWrite:
		n, err = io.ReadFull(r.delta, p[:want])
	}
	if err != nil {
		return n, errors.Wrap(err, "reading command payload")
	}

	r.remaining -= int64(n)
	if r.remaining == 0 {
		r.current = 0
		if advErr := r.advance(); advErr != nil && advErr != io.EOF {
			return n, advErr
		} else if advErr == io.EOF {
			r.exhausted = true
		}
	}
	return n, nil
}
