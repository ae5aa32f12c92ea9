// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectZip(t *testing.T) {
	kind, err := Detect(bytes.NewReader([]byte("PK\x03\x04rest of zip")))
	require.NoError(t, err)
	assert.Equal(t, KindZip, kind)
}

func TestDetectBSA(t *testing.T) {
	kind, err := Detect(bytes.NewReader([]byte("BSA\x00garbage")))
	require.NoError(t, err)
	assert.Equal(t, KindBSA, kind)
}

func TestDetectBA2(t *testing.T) {
	kind, err := Detect(bytes.NewReader([]byte("BTDXgarbage")))
	require.NoError(t, err)
	assert.Equal(t, KindBA2, kind)
}

func TestDetectUnknown(t *testing.T) {
	kind, err := Detect(strings.NewReader("not an archive at all"))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)
}

func TestDetectEmptyInput(t *testing.T) {
	kind, err := Detect(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)
}

func TestBSABuilderRoundTrip(t *testing.T) {
	b := NewBSABuilder(bsaFlagCompressed, 0)
	b.Add("textures/armor/helmet.dds", []byte("dds-bytes-here"), BSAFileMeta{NameHash: 0x1111, DirHash: 0xaaaa, Compressed: true})
	b.Add("meshes/armor/helmet.nif", bytes.Repeat([]byte{0x07}, 2048), BSAFileMeta{NameHash: 0x2222, DirHash: 0xbbbb, Compressed: false})

	var out bytes.Buffer
	require.NoError(t, b.Write(&out))

	archiveBytes := out.Bytes()
	opener := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(archiveBytes)), nil
	}

	kind, err := Detect(bytes.NewReader(archiveBytes))
	require.NoError(t, err)
	assert.Equal(t, KindBSA, kind)

	archive := Open(kind, opener)
	entries, err := archive.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	results := map[string]*bytes.Buffer{
		"textures/armor/helmet.dds": {},
		"meshes/armor/helmet.nif":   {},
	}
	err = archive.ExtractMany([]string{"textures/armor/helmet.dds", "meshes/armor/helmet.nif"}, func(path string) (io.Writer, bool) {
		buf, ok := results[path]
		return buf, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "dds-bytes-here", results["textures/armor/helmet.dds"].String())
	assert.Equal(t, bytes.Repeat([]byte{0x07}, 2048), results["meshes/armor/helmet.nif"].Bytes())
}

func TestBA2BuilderRoundTrip(t *testing.T) {
	b := NewBA2Builder()
	b.Add("textures/weapon/sword_d.dds", bytes.Repeat([]byte{0x42}, 4096), BA2FileMeta{NameHash: 0x3333, DirHash: 0xcccc, Extension: ".dds", Compressed: true})

	var out bytes.Buffer
	require.NoError(t, b.Write(&out))
	archiveBytes := out.Bytes()

	kind, err := Detect(bytes.NewReader(archiveBytes))
	require.NoError(t, err)
	assert.Equal(t, KindBA2, kind)

	archive := Open(kind, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(archiveBytes)), nil
	})
	entries, err := archive.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "textures/weapon/sword_d.dds", entries[0].Path)

	result := &bytes.Buffer{}
	err = archive.ExtractMany([]string{"textures/weapon/sword_d.dds"}, func(path string) (io.Writer, bool) {
		if path == "textures/weapon/sword_d.dds" {
			return result, true
		}
		return nil, false
	})
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 4096), result.Bytes())
}

func TestBSAExtractManyErrorsOnMissingPath(t *testing.T) {
	b := NewBSABuilder(bsaFlagCompressed, 0)
	b.Add("textures/armor/helmet.dds", []byte("dds-bytes-here"), BSAFileMeta{NameHash: 0x1111, DirHash: 0xaaaa, Compressed: true})

	var out bytes.Buffer
	require.NoError(t, b.Write(&out))
	archiveBytes := out.Bytes()

	archive := Open(KindBSA, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(archiveBytes)), nil
	})

	err := archive.ExtractMany([]string{"textures/armor/helmet.dds", "textures/armor/missing.dds"}, func(path string) (io.Writer, bool) {
		return io.Discard, true
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "textures/armor/missing.dds")
}

func TestListCacheMemoizes(t *testing.T) {
	calls := 0
	countingArchive := countingLister(func() ([]Entry, error) {
		calls++
		return []Entry{{Path: "a.txt", Size: 1}}, nil
	})

	cache, err := NewListCache(8)
	require.NoError(t, err)

	_, err = cache.Get("key", countingArchive)
	require.NoError(t, err)
	_, err = cache.Get("key", countingArchive)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

type countingLister func() ([]Entry, error)

func (c countingLister) List() ([]Entry, error) { return c() }
func (c countingLister) ExtractMany([]string, func(string) (io.Writer, bool)) error {
	return nil
}
