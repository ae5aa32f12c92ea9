// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package manifest

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
)

// DirectiveKind tags which of the six directive variants a Directive carries.
type DirectiveKind string

const (
	KindInlineFile         DirectiveKind = "InlineFile"
	KindRemappedInlineFile DirectiveKind = "RemappedInlineFile"
	KindFromArchive        DirectiveKind = "FromArchive"
	KindPatchedFromArchive DirectiveKind = "PatchedFromArchive"
	KindTransformedTexture DirectiveKind = "TransformedTexture"
	KindCreateBSA          DirectiveKind = "CreateBSA"
)

// ArchiveHashPath addresses a file possibly nested inside archives.
// The first element is the base64 hash of the top-level downloaded
// archive; subsequent elements are the nested path segments.
type ArchiveHashPath struct {
	Root  hashing.H
	Inner []string
}

// Key renders the address as a stable map/cache key.
func (p ArchiveHashPath) Key() string {
	return hashing.Encode(p.Root) + "/" + strings.Join(p.Inner, "/")
}

// Parent returns the address one level up and the segment it holds,
// or false if p already names the root archive.
func (p ArchiveHashPath) Parent() (ArchiveHashPath, string, bool) {
	if len(p.Inner) == 0 {
		return ArchiveHashPath{}, "", false
	}
	last := p.Inner[len(p.Inner)-1]
	parent := ArchiveHashPath{Root: p.Root, Inner: p.Inner[:len(p.Inner)-1]}
	return parent, last, true
}

// Depth is len(Inner): 0 names the root archive file itself.
func (p ArchiveHashPath) Depth() int { return len(p.Inner) }

func (p *ArchiveHashPath) UnmarshalJSON(b []byte) error {
	var segments []string
	if err := json.Unmarshal(b, &segments); err != nil {
		return err
	}
	if len(segments) == 0 {
		return errors.New("ArchiveHashPath must have at least one segment")
	}
	h, err := hashing.Decode(segments[0])
	if err != nil {
		return errors.Wrap(err, "decoding ArchiveHashPath root hash")
	}
	p.Root = h
	p.Inner = segments[1:]
	return nil
}

func (p ArchiveHashPath) MarshalJSON() ([]byte, error) {
	segments := append([]string{hashing.Encode(p.Root)}, p.Inner...)
	return json.Marshal(segments)
}

// ImageState describes a TransformedTexture directive's target.
type ImageState struct {
	Format         string `json:"Format"`
	Height         uint64 `json:"Height"`
	Width          uint64 `json:"Width"`
	MipLevels      uint64 `json:"MipLevels"`
	PerceptualHash string `json:"PerceptualHash"`
}

// FileState describes one staged input to a CreateBSA/CreateBA2
// directive. Fields beyond the ones every variant shares are
// format-specific; internal/transform passes only Path, DirHash,
// NameHash, Extension and Compressed on to the archive builders and
// does not check the others.
type FileState struct {
	Type string `json:"$type"`

	Path       string `json:"Path"`
	Index      int    `json:"Index"`
	DirHash    uint32 `json:"DirHash"`
	NameHash   uint32 `json:"NameHash"`
	Extension  string `json:"Extension"`
	Flags      uint64 `json:"Flags"`
	Align      uint64 `json:"Align"`
	Compressed bool   `json:"Compressed"`

	// DX10/texture-entry fields (BA2DX10Entry).
	ChunkHdrLen uint64           `json:"ChunkHdrLen"`
	Chunks      []FileStateChunk `json:"Chunks"`
	NumMips     uint8            `json:"NumMips"`
	PixelFormat uint8            `json:"PixelFormat"`
	TileMode    uint8            `json:"TileMode"`
	Height      uint16           `json:"Height"`
	Width       uint16           `json:"Width"`
	IsCubeMap   uint8            `json:"IsCubeMap"`
}

// FileStateChunk is one piece of a chunked DX10 texture entry.
type FileStateChunk struct {
	Align      uint64 `json:"Align"`
	Compressed bool   `json:"Compressed"`
	FullSz     uint32 `json:"FullSz"`
	Offset     uint64 `json:"Offset"`
}

// DirectiveState carries archive-level build flags for CreateBSA.
type DirectiveState struct {
	Type         string `json:"$type"`
	Version      uint32 `json:"Version"`
	ArchiveFlags uint32 `json:"ArchiveFlags"`
	FileFlags    uint32 `json:"FileFlags"`
	HasNameTable bool   `json:"HasFolderNames"`
	HeaderMagic  string `json:"HeaderMagic"`
	Kind         uint64 `json:"Type"`
}

// Directive is the tagged union of the six installer directive kinds.
// Only the fields relevant to Kind are populated.
type Directive struct {
	Kind DirectiveKind
	To   string
	Size int64
	Hash hashing.H

	// InlineFile / RemappedInlineFile
	SourceDataID uuid.UUID

	// FromArchive / PatchedFromArchive / TransformedTexture
	ArchiveHashPath ArchiveHashPath

	// PatchedFromArchive
	FromHash hashing.H
	PatchID  uuid.UUID

	// TransformedTexture
	ImageState ImageState

	// CreateBSA
	TempID     string
	FileStates []FileState
	State      DirectiveState
}

type rawDirective struct {
	Type            DirectiveKind    `json:"$type"`
	Hash            string           `json:"Hash"`
	Size            int64            `json:"Size"`
	To              string           `json:"To"`
	SourceDataID    string           `json:"SourceDataID"`
	ArchiveHashPath *ArchiveHashPath `json:"ArchiveHashPath"`
	FromHash        string           `json:"FromHash"`
	PatchID         string           `json:"PatchID"`
	ImageState      ImageState       `json:"ImageState"`
	TempID          string           `json:"TempID"`
	FileStates      []FileState      `json:"FileStates"`
	State           DirectiveState   `json:"State"`
}

func (d *Directive) UnmarshalJSON(b []byte) error {
	var raw rawDirective
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	d.Kind = raw.Type
	d.To = raw.To
	d.Size = raw.Size

	if raw.Hash != "" {
		h, err := hashing.Decode(raw.Hash)
		if err != nil {
			return errors.Wrapf(err, "directive %q: decoding Hash", raw.To)
		}
		d.Hash = h
	}

	if raw.SourceDataID != "" {
		id, err := uuid.Parse(raw.SourceDataID)
		if err != nil {
			return errors.Wrapf(err, "directive %q: parsing SourceDataID", raw.To)
		}
		d.SourceDataID = id
	}

	if raw.ArchiveHashPath != nil {
		d.ArchiveHashPath = *raw.ArchiveHashPath
	}

	if raw.FromHash != "" {
		h, err := hashing.Decode(raw.FromHash)
		if err != nil {
			return errors.Wrapf(err, "directive %q: decoding FromHash", raw.To)
		}
		d.FromHash = h
	}

	if raw.PatchID != "" {
		id, err := uuid.Parse(raw.PatchID)
		if err != nil {
			return errors.Wrapf(err, "directive %q: parsing PatchID", raw.To)
		}
		d.PatchID = id
	}

	d.ImageState = raw.ImageState
	d.TempID = raw.TempID
	d.FileStates = raw.FileStates
	d.State = raw.State

	switch d.Kind {
	case KindInlineFile, KindRemappedInlineFile, KindFromArchive, KindPatchedFromArchive, KindTransformedTexture, KindCreateBSA:
	default:
		return errors.Errorf("unrecognized directive $type %q", raw.Type)
	}
	return nil
}

// Summary is a printable identity for error reporting.
func (d Directive) Summary() string {
	return string(d.Kind) + " -> " + d.To
}

// StableHash is the xxh64 over the directive's canonical JSON
// serialization used to key `whitelist_failed_directives`.
func (d Directive) StableHash() (hashing.H, error) {
	canonical, err := json.Marshal(d)
	if err != nil {
		return 0, errors.Wrap(err, "marshaling directive for stable hash")
	}
	return hashing.HashReader(strings.NewReader(string(canonical)))
}
