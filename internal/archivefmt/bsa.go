// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// BSA is the Skyrim-family container (magic "BSA\x00"). Only the
// single-folder-per-archive-relative-directory layout the installer
// produces and consumes is modeled; exotic flag combinations found in
// third-party archives are read permissively, and the builder writes
// whatever archive and file flags the directive carries.
const (
	bsaMagic   = "BSA\x00"
	bsaVersion = uint32(105) // Skyrim Special Edition

	bsaHeaderSize = 36

	// Archive-level flags this package understands; unknown bits are
	// preserved on read, and on write the builder keeps every bit the
	// caller passes (adding HasNames).
	bsaFlagHasNames      = 1 << 1
	bsaFlagCompressed    = 1 << 2
	bsaFlagEmbedFileName = 1 << 9
)

type bsaFileRecord struct {
	nameHash uint64
	name     string
	size     uint32
	offset   uint32
	raw      []byte // populated lazily on ExtractMany
}

type bsaArchive struct {
	open Opener
}

// NewBSA wraps an Opener over BSA-formatted content.
func NewBSA(open Opener) Archive { return &bsaArchive{open: open} }

func (a *bsaArchive) readAll() (flags uint32, files []bsaFileRecord, body []byte, err error) {
	rc, err := a.open()
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "opening BSA")
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "reading BSA into memory")
	}
	if len(buf) < bsaHeaderSize || string(buf[:4]) != bsaMagic {
		return 0, nil, nil, errors.New("not a BSA archive: bad magic")
	}

	r := bytes.NewReader(buf)
	var hdr struct {
		Magic           [4]byte
		Version         uint32
		OffsetRecords   uint32
		ArchiveFlags    uint32
		FolderCount     uint32
		FileCount       uint32
		TotalFolderName uint32
		TotalFileName   uint32
		FileFlags       uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, nil, nil, errors.Wrap(err, "reading BSA header")
	}

	type folderRecord struct {
		hash  uint64
		count uint32
	}
	folders := make([]folderRecord, hdr.FolderCount)
	for i := range folders {
		var rec struct {
			Hash   uint64
			Count  uint32
			Offset uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return 0, nil, nil, errors.Wrapf(err, "reading BSA folder record %d", i)
		}
		folders[i] = folderRecord{hash: rec.Hash, count: rec.Count}
	}

	records := make([]bsaFileRecord, 0, hdr.FileCount)
	for _, f := range folders {
		if hdr.ArchiveFlags&bsaFlagHasNames != 0 {
			nameLen, err := r.ReadByte()
			if err != nil {
				return 0, nil, nil, errors.Wrap(err, "reading BSA folder name length")
			}
			name := make([]byte, nameLen)
			if _, err := io.ReadFull(r, name); err != nil {
				return 0, nil, nil, errors.Wrap(err, "reading BSA folder name")
			}
		}
		for i := uint32(0); i < f.count; i++ {
			var rec struct {
				Hash   uint64
				Size   uint32
				Offset uint32
			}
			if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
				return 0, nil, nil, errors.Wrap(err, "reading BSA file record")
			}
			records = append(records, bsaFileRecord{nameHash: rec.Hash, size: rec.Size, offset: rec.Offset})
		}
	}

	if hdr.ArchiveFlags&bsaFlagHasNames != 0 {
		for i := range records {
			var nb bytes.Buffer
			for {
				c, err := r.ReadByte()
				if err != nil {
					return 0, nil, nil, errors.Wrap(err, "reading BSA file name")
				}
				if c == 0 {
					break
				}
				nb.WriteByte(c)
			}
			records[i].name = nb.String()
		}
	}

	return hdr.ArchiveFlags, records, buf, nil
}

func (a *bsaArchive) List() ([]Entry, error) {
	_, files, _, err := a.readAll()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, Entry{Path: normalizePath(f.name), Size: int64(f.size &^ 0x80000000)})
	}
	return entries, nil
}

func (a *bsaArchive) ExtractMany(paths []string, want func(path string) (io.Writer, bool)) error {
	flags, files, buf, err := a.readAll()
	if err != nil {
		return err
	}
	compressedByDefault := flags&bsaFlagCompressed != 0

	matched := make(map[string]bool, len(paths))
	for _, f := range files {
		p := normalizePath(f.name)
		w, ok := want(p)
		if !ok {
			continue
		}
		compressed := compressedByDefault
		size := f.size
		if size&0x40000000 != 0 {
			compressed = !compressed
			size &^= 0x40000000
		}
		if int(f.offset)+int(size) > len(buf) {
			return errors.Errorf("BSA file %q: record out of bounds", f.name)
		}
		raw := buf[f.offset : f.offset+size]
		if !compressed {
			if _, err := w.Write(raw); err != nil {
				return errors.Wrapf(err, "writing extracted %q", f.name)
			}
			matched[p] = true
			continue
		}
		if len(raw) < 4 {
			return errors.Errorf("BSA file %q: truncated compressed record", f.name)
		}
		uncompressedSize := binary.LittleEndian.Uint32(raw[:4])
		dst := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(raw[4:], dst)
		if err != nil {
			return errors.Wrapf(err, "decompressing BSA file %q", f.name)
		}
		if _, err := w.Write(dst[:n]); err != nil {
			return errors.Wrapf(err, "writing extracted %q", f.name)
		}
		matched[p] = true
	}
	if missing := missingPaths(paths, matched); len(missing) > 0 {
		return errors.Errorf("path(s) not found in archive: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BSAFileMeta carries the manifest-declared per-entry data a CreateBSA
// directive's FileState attaches to a staged input: the game engine's
// own directory/file hash and whether this particular entry is
// compressed, as an exception to the archive's default.
type BSAFileMeta struct {
	DirHash    uint32
	NameHash   uint32
	Compressed bool
}

// BSABuilder assembles a new BSA archive for the CreateBSA directive,
// grouping staged inputs by their archive-relative
// directory into folder records the way the Skyrim container expects.
// archiveFlags and fileFlags are the directive's own DirectiveState
// bitfields; bsaFlagHasNames is forced on regardless of what the
// manifest carries, since this builder's layout always writes folder
// and file name tables and a reader built against it always expects
// them.
type BSABuilder struct {
	files map[string][]byte
	meta  map[string]BSAFileMeta

	archiveFlags uint32
	fileFlags    uint32
}

func NewBSABuilder(archiveFlags, fileFlags uint32) *BSABuilder {
	return &BSABuilder{
		files:        make(map[string][]byte),
		meta:         make(map[string]BSAFileMeta),
		archiveFlags: archiveFlags | bsaFlagHasNames,
		fileFlags:    fileFlags,
	}
}

func (b *BSABuilder) Add(archiveRelativePath string, data []byte, meta BSAFileMeta) {
	p := normalizePath(archiveRelativePath)
	b.files[p] = data
	b.meta[p] = meta
}

func (b *BSABuilder) folders() map[string][]string {
	byFolder := make(map[string][]string)
	for p := range b.files {
		idx := strings.LastIndexByte(p, '/')
		folder := ""
		if idx >= 0 {
			folder = p[:idx]
		}
		byFolder[folder] = append(byFolder[folder], p)
	}
	for _, paths := range byFolder {
		sort.Strings(paths)
	}
	return byFolder
}

// Write serializes the archive; bodies of entries marked Compressed
// are LZ4-compressed and the rest are stored raw.
func (b *BSABuilder) Write(w io.Writer) error {
	byFolder := b.folders()
	folderNames := make([]string, 0, len(byFolder))
	for name := range byFolder {
		folderNames = append(folderNames, name)
	}
	sort.Strings(folderNames)

	var fileCount uint32
	for _, paths := range byFolder {
		fileCount += uint32(len(paths))
	}

	compressedByDefault := b.archiveFlags&bsaFlagCompressed != 0

	var buf bytes.Buffer
	buf.WriteString(bsaMagic)
	binary.Write(&buf, binary.LittleEndian, bsaVersion)
	binary.Write(&buf, binary.LittleEndian, uint32(bsaHeaderSize))
	binary.Write(&buf, binary.LittleEndian, b.archiveFlags)
	binary.Write(&buf, binary.LittleEndian, uint32(len(folderNames)))
	binary.Write(&buf, binary.LittleEndian, fileCount)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, b.fileFlags)

	for _, name := range folderNames {
		binary.Write(&buf, binary.LittleEndian, b.folderHash(name, byFolder[name]))
		binary.Write(&buf, binary.LittleEndian, uint32(len(byFolder[name])))
		binary.Write(&buf, binary.LittleEndian, uint32(0)) // filled in second pass below
	}

	type compressed struct {
		path string
		body []byte
	}
	var bodies []compressed
	// offsetFields records, in file-record order, the byte position
	// within buf that holds each record's placeholder Offset field so
	// it can be patched once every body's final position is known.
	var offsetFields []int
	for _, name := range folderNames {
		buf.WriteByte(byte(len(name)))
		buf.WriteString(name)
		for _, p := range byFolder[name] {
			raw := b.files[p]
			meta := b.meta[p]

			var bodyBytes []byte
			storeCompressed := meta.Compressed
			if storeCompressed {
				block := make([]byte, lz4.CompressBlockBound(len(raw)))
				n, err := lz4.CompressBlock(raw, block, nil)
				if err != nil {
					return errors.Wrapf(err, "compressing %q for BSA", p)
				}
				var body bytes.Buffer
				binary.Write(&body, binary.LittleEndian, uint32(len(raw)))
				body.Write(block[:n])
				bodyBytes = body.Bytes()
			} else {
				bodyBytes = raw
			}
			bodies = append(bodies, compressed{path: p, body: bodyBytes})

			size := uint32(len(bodyBytes))
			if storeCompressed != compressedByDefault {
				size |= 0x40000000
			}
			binary.Write(&buf, binary.LittleEndian, uint64(meta.NameHash))
			binary.Write(&buf, binary.LittleEndian, size)
			offsetFields = append(offsetFields, buf.Len())
			binary.Write(&buf, binary.LittleEndian, uint32(0))
		}
	}
	for _, name := range folderNames {
		for _, p := range byFolder[name] {
			buf.WriteString(p)
			buf.WriteByte(0)
		}
	}

	out := buf.Bytes()
	for i, c := range bodies {
		binary.LittleEndian.PutUint32(out[offsetFields[i]:], uint32(len(out)))
		out = append(out, c.body...)
	}

	_, err := w.Write(out)
	return err
}

// folderHash derives a folder record's hash from the DirHash the
// manifest declared for the files it contains: every file sharing a
// folder carries the same directory hash in a real CreateBSA
// directive, so the first one found is authoritative.
// Falls back to pathHash only for folders whose files carry no
// DirHash, which happens when a caller (namely tests) adds entries
// without real manifest metadata.
func (b *BSABuilder) folderHash(name string, paths []string) uint64 {
	for _, p := range paths {
		if meta, ok := b.meta[p]; ok && meta.DirHash != 0 {
			return uint64(meta.DirHash)
		}
	}
	return pathHash(name)
}

// pathHash folds a path into a stable 64-bit key; it is not the game
// engine's own hash algorithm, only a deterministic fallback used when
// a folder's files carry no manifest-declared DirHash.
func pathHash(p string) uint64 {
	var h uint64 = 0xcbf29ce484222325
	for i := 0; i < len(p); i++ {
		h ^= uint64(p[i])
		h *= 0x100000001b3
	}
	return h
}
