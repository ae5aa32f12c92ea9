// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nestedarchive

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/fdpermit"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

func buildZipFixture(t *testing.T) (string, hashing.H) {
	t.Helper()
	dir := t.TempDir()

	b := archivefmt.NewBSABuilder(0, 0)
	b.Add("inner.txt", []byte("payload from inside the nested archive"), archivefmt.BSAFileMeta{NameHash: 0x1234, DirHash: 0x5678})
	path := filepath.Join(dir, "root.bsa")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, b.Write(f))
	require.NoError(t, f.Close())

	h, err := hashing.HashFile(path)
	require.NoError(t, err)
	return path, h
}

func TestResolveRootBorrowsDownloadedPath(t *testing.T) {
	path, h := buildZipFixture(t)
	resolver := New(func(hash hashing.H) (string, bool) {
		if hash == h {
			return path, true
		}
		return "", false
	}, fdpermit.NewPool(2), t.TempDir())

	resolved, err := resolver.Resolve(manifest.ArchiveHashPath{Root: h})
	require.NoError(t, err)
	assert.Equal(t, path, resolved.Path)
}

func TestResolveNestedExtractsOnce(t *testing.T) {
	path, h := buildZipFixture(t)
	var extractCalls int32

	resolver := New(func(hash hashing.H) (string, bool) {
		return path, hash == h
	}, fdpermit.NewPool(2), t.TempDir())
	resolver.detect = func(open archivefmt.Opener) (archivefmt.Kind, error) {
		atomic.AddInt32(&extractCalls, 1)
		return archivefmt.DetectFile(open)
	}

	addr := manifest.ArchiveHashPath{Root: h, Inner: []string{"inner.txt"}}

	var wg sync.WaitGroup
	results := make([]*Resolved, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(addr)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].Path, results[i].Path)
	}
	assert.EqualValues(t, 1, extractCalls)

	data, err := os.ReadFile(results[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "payload from inside the nested archive", string(data))
}

func TestPruneRemovesTempFile(t *testing.T) {
	path, h := buildZipFixture(t)
	resolver := New(func(hash hashing.H) (string, bool) {
		return path, hash == h
	}, fdpermit.NewPool(2), t.TempDir())

	addr := manifest.ArchiveHashPath{Root: h, Inner: []string{"inner.txt"}}
	resolved, err := resolver.Resolve(addr)
	require.NoError(t, err)

	_, err = os.Stat(resolved.Path)
	require.NoError(t, err)

	require.NoError(t, resolver.Prune(addr))

	_, err = os.Stat(resolved.Path)
	assert.True(t, os.IsNotExist(err))
	assert.EqualValues(t, 0, resolver.permits.InUse())
}

func TestResolveMatchesSegmentCaseInsensitively(t *testing.T) {
	path, h := buildZipFixture(t)
	resolver := New(func(hash hashing.H) (string, bool) {
		return path, hash == h
	}, fdpermit.NewPool(2), t.TempDir())

	addr := manifest.ArchiveHashPath{Root: h, Inner: []string{"INNER.TXT"}}
	resolved, err := resolver.Resolve(addr)
	require.NoError(t, err)

	data, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "payload from inside the nested archive", string(data))
}

func TestResolveMissingSegmentNamesEntry(t *testing.T) {
	path, h := buildZipFixture(t)
	resolver := New(func(hash hashing.H) (string, bool) {
		return path, hash == h
	}, fdpermit.NewPool(2), t.TempDir())

	_, err := resolver.Resolve(manifest.ArchiveHashPath{Root: h, Inner: []string{"nope.txt"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.txt")
	assert.EqualValues(t, 0, resolver.permits.InUse())
}

func TestResolveMissingRootIsError(t *testing.T) {
	resolver := New(func(hashing.H) (string, bool) { return "", false }, fdpermit.NewPool(1), t.TempDir())
	_, err := resolver.Resolve(manifest.ArchiveHashPath{Root: 0xdead})
	require.Error(t, err)
}
