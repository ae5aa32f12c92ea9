// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// BA2 is the Fallout4-family container (magic "BTDX"). This package
// implements the general-purpose "GNRL" file layout; DX10 texture
// chunk entries are modeled in internal/manifest.FileState for the
// CreateBSA directive's input description but are written as opaque
// GNRL blobs here; nothing in this module splits textures into DX10
// chunks, so those FileState fields are not used when writing.
const (
	ba2Magic      = "BTDX"
	ba2VersionFO4 = uint32(1)
	ba2TypeGNRL   = "GNRL"
)

type ba2FileRecord struct {
	name             string
	offset           uint64
	compressedSize   uint32
	uncompressedSize uint32
}

type ba2Archive struct {
	open Opener
}

// NewBA2 wraps an Opener over BA2-formatted content.
func NewBA2(open Opener) Archive { return &ba2Archive{open: open} }

func (a *ba2Archive) readAll() ([]ba2FileRecord, []byte, error) {
	rc, err := a.open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening BA2")
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading BA2 into memory")
	}
	if len(buf) < 24 || string(buf[:4]) != ba2Magic {
		return nil, nil, errors.New("not a BA2 archive: bad magic")
	}

	r := bytes.NewReader(buf)
	var hdr struct {
		Magic      [4]byte
		Version    uint32
		Type       [4]byte
		FileCount  uint32
		NameOffset uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, errors.Wrap(err, "reading BA2 header")
	}
	if string(hdr.Type[:]) != ba2TypeGNRL {
		return nil, nil, errors.Errorf("unsupported BA2 type %q", hdr.Type[:])
	}

	records := make([]ba2FileRecord, hdr.FileCount)
	for i := range records {
		var rec struct {
			NameHash       uint32
			Extension      [4]byte
			DirHash        uint32
			Flags          uint32
			Offset         uint64
			PackedLength   uint32
			UnpackedLength uint32
			Align          uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, nil, errors.Wrapf(err, "reading BA2 file record %d", i)
		}
		records[i] = ba2FileRecord{
			offset:           rec.Offset,
			compressedSize:   rec.PackedLength,
			uncompressedSize: rec.UnpackedLength,
		}
	}

	if int(hdr.NameOffset) < len(buf) {
		nr := bytes.NewReader(buf[hdr.NameOffset:])
		for i := range records {
			var nameLen uint16
			if err := binary.Read(nr, binary.LittleEndian, &nameLen); err != nil {
				return nil, nil, errors.Wrap(err, "reading BA2 file name length")
			}
			name := make([]byte, nameLen)
			if _, err := io.ReadFull(nr, name); err != nil {
				return nil, nil, errors.Wrap(err, "reading BA2 file name")
			}
			records[i].name = string(name)
		}
	}

	return records, buf, nil
}

func (a *ba2Archive) List() ([]Entry, error) {
	records, _, err := a.readAll()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{Path: normalizePath(r.name), Size: int64(r.uncompressedSize)})
	}
	return entries, nil
}

func (a *ba2Archive) ExtractMany(paths []string, want func(path string) (io.Writer, bool)) error {
	records, buf, err := a.readAll()
	if err != nil {
		return err
	}
	matched := make(map[string]bool, len(paths))
	for _, rec := range records {
		p := normalizePath(rec.name)
		w, ok := want(p)
		if !ok {
			continue
		}
		end := rec.offset + uint64(rec.compressedSize)
		if rec.compressedSize == 0 {
			end = rec.offset + uint64(rec.uncompressedSize)
		}
		if end > uint64(len(buf)) {
			return errors.Errorf("BA2 file %q: record out of bounds", rec.name)
		}
		raw := buf[rec.offset:end]
		if rec.compressedSize == 0 {
			if _, err := w.Write(raw); err != nil {
				return errors.Wrapf(err, "writing extracted %q", rec.name)
			}
			matched[p] = true
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return errors.Wrapf(err, "opening zlib stream for %q", rec.name)
		}
		if _, err := io.Copy(w, zr); err != nil {
			zr.Close()
			return errors.Wrapf(err, "decompressing BA2 file %q", rec.name)
		}
		zr.Close()
		matched[p] = true
	}
	if missing := missingPaths(paths, matched); len(missing) > 0 {
		return errors.Errorf("path(s) not found in archive: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BA2FileMeta carries the manifest-declared per-entry data a CreateBA2
// directive's FileState attaches to a staged input: the three fields
// that, together, form the game engine's own lookup key for the
// entry, plus whether it is stored compressed.
type BA2FileMeta struct {
	NameHash   uint32
	DirHash    uint32
	Extension  string
	Compressed bool
}

// BA2Builder assembles a new BA2 GNRL archive for CreateBSA directives
// targeting Fallout4-family games.
type BA2Builder struct {
	files map[string][]byte
	meta  map[string]BA2FileMeta
}

func NewBA2Builder() *BA2Builder {
	return &BA2Builder{files: make(map[string][]byte), meta: make(map[string]BA2FileMeta)}
}

func (b *BA2Builder) Add(archiveRelativePath string, data []byte, meta BA2FileMeta) {
	p := normalizePath(archiveRelativePath)
	b.files[p] = data
	b.meta[p] = meta
}

// extensionKey packs a FileState's Extension into the fixed 4-byte
// field the record format stores. Real manifests always
// declare a 4-byte extension (e.g. ".dds"); shorter or longer values
// are zero-padded or truncated rather than rejected, since nothing
// downstream reads this field back by name.
func extensionKey(ext string) [4]byte {
	var out [4]byte
	copy(out[:], ext)
	return out
}

func (b *BA2Builder) Write(w io.Writer) error {
	paths := make([]string, 0, len(b.files))
	for p := range b.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	buf.WriteString(ba2Magic)
	binary.Write(&buf, binary.LittleEndian, ba2VersionFO4)
	buf.WriteString(ba2TypeGNRL)
	binary.Write(&buf, binary.LittleEndian, uint32(len(paths)))
	nameOffsetField := buf.Len()
	binary.Write(&buf, binary.LittleEndian, uint64(0))

	type body struct {
		raw        []byte
		compressed []byte
	}
	bodies := make([]body, len(paths))
	var offsetFields []int
	for i, p := range paths {
		raw := b.files[p]
		meta := b.meta[p]

		var packedLen uint32
		var onDisk []byte
		if meta.Compressed {
			var cbuf bytes.Buffer
			zw := zlib.NewWriter(&cbuf)
			if _, err := zw.Write(raw); err != nil {
				return errors.Wrapf(err, "compressing %q for BA2", p)
			}
			if err := zw.Close(); err != nil {
				return errors.Wrapf(err, "flushing compressed %q for BA2", p)
			}
			onDisk = cbuf.Bytes()
			packedLen = uint32(len(onDisk))
		} else {
			onDisk = raw
			packedLen = 0
		}
		bodies[i] = body{raw: raw, compressed: onDisk}

		ext := extensionKey(meta.Extension)
		binary.Write(&buf, binary.LittleEndian, meta.NameHash)
		buf.Write(ext[:])
		binary.Write(&buf, binary.LittleEndian, meta.DirHash)
		binary.Write(&buf, binary.LittleEndian, uint32(0)) // flags: unused by the GNRL reader
		offsetFields = append(offsetFields, buf.Len())
		binary.Write(&buf, binary.LittleEndian, uint64(0)) // offset placeholder
		binary.Write(&buf, binary.LittleEndian, packedLen)
		binary.Write(&buf, binary.LittleEndian, uint32(len(raw)))
		binary.Write(&buf, binary.LittleEndian, uint32(0)) // align
	}

	out := buf.Bytes()
	for i := range bodies {
		binary.LittleEndian.PutUint64(out[offsetFields[i]:], uint64(len(out)))
		out = append(out, bodies[i].compressed...)
	}

	nameOffset := uint64(len(out))
	for _, p := range paths {
		var nb bytes.Buffer
		binary.Write(&nb, binary.LittleEndian, uint16(len(p)))
		nb.WriteString(p)
		out = append(out, nb.Bytes()...)
	}
	binary.LittleEndian.PutUint64(out[nameOffsetField:], nameOffset)

	_, err := w.Write(out)
	return err
}
