// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package downloadcache

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoolamike-go/hoolamike/internal/downloadcache/sources"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

func TestSyncSkipsAlreadyVerifiedArchive(t *testing.T) {
	dir := t.TempDir()
	content := []byte("already downloaded content")
	path := filepath.Join(dir, "mod.7z")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	h, err := hashing.HashFile(path)
	require.NoError(t, err)

	cache := New(dir, sources.NewRegistry(sources.Config{}))
	results, failures := cache.Sync(t.Context(), []manifest.Archive{{
		ArchiveDescriptor: manifest.ArchiveDescriptor{Name: "mod.7z", Size: int64(len(content)), Hash: h},
	}})
	require.Empty(t, failures)
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].LocalPath)
}

func TestSyncDownloadsMissingArchive(t *testing.T) {
	content := []byte("freshly downloaded content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	h, err := hashing.HashReader(bytes.NewReader(content))
	require.NoError(t, err)

	cache := New(dir, sources.NewRegistry(sources.Config{}))
	results, failures := cache.Sync(t.Context(), []manifest.Archive{{
		ArchiveDescriptor: manifest.ArchiveDescriptor{Name: "mod.7z", Size: int64(len(content)), Hash: h},
		State:             manifest.Source{Kind: manifest.SourceHTTP, URL: srv.URL},
	}})
	require.Empty(t, failures)
	require.Len(t, results, 1)

	got, err := os.ReadFile(filepath.Join(dir, "mod.7z"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSyncReportsFailure(t *testing.T) {
	dir := t.TempDir()
	cache := New(dir, sources.NewRegistry(sources.Config{}))
	results, failures := cache.Sync(t.Context(), []manifest.Archive{{
		ArchiveDescriptor: manifest.ArchiveDescriptor{Name: "broken.7z", Size: 10},
		State:             manifest.Source{Kind: "no-such-kind"},
	}})
	assert.Empty(t, results)
	require.Len(t, failures, 1)
	assert.Equal(t, "broken.7z", failures[0].Descriptor.Name)
}

func TestSyncKeepsSuccessesWhenOneArchiveFails(t *testing.T) {
	content := []byte("good archive content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	h, err := hashing.HashReader(bytes.NewReader(content))
	require.NoError(t, err)

	cache := New(dir, sources.NewRegistry(sources.Config{}))
	results, failures := cache.Sync(t.Context(), []manifest.Archive{
		{
			ArchiveDescriptor: manifest.ArchiveDescriptor{Name: "good.7z", Size: int64(len(content)), Hash: h},
			State:             manifest.Source{Kind: manifest.SourceHTTP, URL: srv.URL},
		},
		{
			ArchiveDescriptor: manifest.ArchiveDescriptor{Name: "broken.7z", Size: 10},
			State:             manifest.Source{Kind: "no-such-kind"},
		},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "good.7z", results[0].Descriptor.Name)
	require.Len(t, failures, 1)
	assert.Equal(t, "broken.7z", failures[0].Descriptor.Name)

	got, err := os.ReadFile(filepath.Join(dir, "good.7z"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
