// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/fdpermit"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
	"github.com/hoolamike-go/hoolamike/internal/transform"
)

type memInlineStore map[string][]byte

func (m memInlineStore) Open(id string) (io.ReadCloser, error) {
	data, ok := m[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newScheduler(t *testing.T, inline memInlineStore) (*Scheduler, string) {
	t.Helper()
	outDir := t.TempDir()
	resolver := nestedarchive.New(func(hashing.H) (string, bool) { return "", false }, fdpermit.NewPool(2), t.TempDir())
	ctx := &transform.Context{
		OutputDir:   outDir,
		Resolver:    resolver,
		InlineStore: inline,
	}
	return &Scheduler{
		Registry:    transform.NewRegistry(nil),
		Resolver:    resolver,
		Context:     ctx,
		Concurrency: 4,
	}, outDir
}

func TestRunSkipsAlreadyCorrectOutputs(t *testing.T) {
	content := []byte("already present and correct")
	h, err := hashing.HashReader(bytes.NewReader(content))
	require.NoError(t, err)

	sched, outDir := newScheduler(t, memInlineStore{})
	target := filepath.Join(outDir, "existing.txt")
	require.NoError(t, os.WriteFile(target, content, 0o644))

	report := sched.Run([]manifest.Directive{{
		Kind: manifest.KindInlineFile,
		To:   "existing.txt",
		Size: int64(len(content)),
		Hash: h,
	}})

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Completed)
	assert.Empty(t, report.Failures)
}

func TestRunExecutesInlineDirectivesAndReportsFailures(t *testing.T) {
	good := []byte("good payload")
	goodID := uuid.New()
	h, err := hashing.HashReader(bytes.NewReader(good))
	require.NoError(t, err)

	sched, outDir := newScheduler(t, memInlineStore{goodID.String(): good})

	report := sched.Run([]manifest.Directive{
		{
			Kind:         manifest.KindInlineFile,
			To:           "ok.txt",
			Size:         int64(len(good)),
			Hash:         h,
			SourceDataID: goodID,
		},
		{
			Kind:         manifest.KindInlineFile,
			To:           "missing.txt",
			Size:         5,
			SourceDataID: uuid.New(), // not in the store
		},
	})

	assert.Equal(t, 1, report.Completed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Directive, "missing.txt")

	got, err := os.ReadFile(filepath.Join(outDir, "ok.txt"))
	require.NoError(t, err)
	assert.Equal(t, good, got)
}

func TestChunkBySizeNeverExceedsLimitPerChunk(t *testing.T) {
	directives := []manifest.Directive{
		{To: "a", Size: 10},
		{To: "b", Size: 10},
		{To: "c", Size: 10},
	}
	chunks := chunkBySize(directives, 15)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		require.Len(t, c, 1)
	}
}

func TestChunkBySizeGroupsUnderLimit(t *testing.T) {
	directives := []manifest.Directive{
		{To: "a", Size: 10},
		{To: "b", Size: 10},
		{To: "c", Size: 10},
	}
	chunks := chunkBySize(directives, 25)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)
}

func TestRunArchivePathIsolatesFailingDirective(t *testing.T) {
	dir := t.TempDir()
	content := []byte("payload for the good directive")
	b := archivefmt.NewBSABuilder(0, 0)
	b.Add("payload.bin", content, archivefmt.BSAFileMeta{NameHash: 0x1, DirHash: 0x2})
	rootPath := filepath.Join(dir, "root.bsa")
	f, err := os.Create(rootPath)
	require.NoError(t, err)
	require.NoError(t, b.Write(f))
	require.NoError(t, f.Close())
	rootHash, err := hashing.HashFile(rootPath)
	require.NoError(t, err)

	h, err := hashing.HashReader(bytes.NewReader(content))
	require.NoError(t, err)

	outDir := t.TempDir()
	resolver := nestedarchive.New(func(hash hashing.H) (string, bool) {
		return rootPath, hash == rootHash
	}, fdpermit.NewPool(2), t.TempDir())
	ctx := &transform.Context{OutputDir: outDir, Resolver: resolver}
	sched := &Scheduler{
		Registry:    transform.NewRegistry(nil),
		Resolver:    resolver,
		Context:     ctx,
		Concurrency: 2,
	}

	report := sched.Run([]manifest.Directive{
		{
			Kind:            manifest.KindFromArchive,
			To:              "good.bin",
			Size:            int64(len(content)),
			Hash:            h,
			ArchiveHashPath: manifest.ArchiveHashPath{Root: rootHash, Inner: []string{"payload.bin"}},
		},
		{
			Kind:            manifest.KindFromArchive,
			To:              "bad.bin",
			Size:            4,
			ArchiveHashPath: manifest.ArchiveHashPath{Root: rootHash, Inner: []string{"missing.bin"}},
		},
	})

	assert.Equal(t, 1, report.Completed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Directive, "bad.bin")

	got, err := os.ReadFile(filepath.Join(outDir, "good.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
