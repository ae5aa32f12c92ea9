// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package preheat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/fdpermit"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
)

func TestPlanGroupsByDepthWithRootExcluded(t *testing.T) {
	root := manifest.ArchiveHashPath{Root: 1}
	leafA := manifest.ArchiveHashPath{Root: 1, Inner: []string{"sub.zip", "a.txt"}}
	leafB := manifest.ArchiveHashPath{Root: 1, Inner: []string{"sub.zip", "b.txt"}}

	plan := Plan([]manifest.ArchiveHashPath{leafA, leafB})
	require.Len(t, plan, 2)
	assert.Len(t, plan[0], 1) // depth 1: sub.zip shared by both leaves
	assert.Equal(t, "sub.zip", plan[0][0].Inner[0])
	assert.Len(t, plan[1], 2) // depth 2: a.txt, b.txt

	_ = root
}

func buildNestedFixture(t *testing.T) (nestedarchive.Locate, hashing.H) {
	t.Helper()
	dir := t.TempDir()

	inner := archivefmt.NewBSABuilder(0, 0)
	inner.Add("deep.txt", []byte("deep payload"), archivefmt.BSAFileMeta{NameHash: 0x1111, DirHash: 0x2222})
	innerPath := filepath.Join(dir, "inner.bsa")
	innerFile, err := os.Create(innerPath)
	require.NoError(t, err)
	require.NoError(t, inner.Write(innerFile))
	require.NoError(t, innerFile.Close())
	innerBytes, err := os.ReadFile(innerPath)
	require.NoError(t, err)

	outer := archivefmt.NewBSABuilder(0, 0)
	outer.Add("inner.bsa", innerBytes, archivefmt.BSAFileMeta{NameHash: 0x3333, DirHash: 0x4444})
	outerPath := filepath.Join(dir, "outer.bsa")
	outerFile, err := os.Create(outerPath)
	require.NoError(t, err)
	require.NoError(t, outer.Write(outerFile))
	require.NoError(t, outerFile.Close())

	h, err := hashing.HashFile(outerPath)
	require.NoError(t, err)

	return func(hash hashing.H) (string, bool) {
		return outerPath, hash == h
	}, h
}

func TestRunExtractsAllDepthsThenPruneReclaims(t *testing.T) {
	locate, root := buildNestedFixture(t)
	resolver := nestedarchive.New(locate, fdpermit.NewPool(2), t.TempDir())

	leaf := manifest.ArchiveHashPath{Root: root, Inner: []string{"inner.bsa", "deep.txt"}}
	require.Empty(t, Run(resolver, []manifest.ArchiveHashPath{leaf}, 2))

	resolved, err := resolver.Resolve(leaf)
	require.NoError(t, err)
	data, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "deep payload", string(data))

	preheated := append(Plan([]manifest.ArchiveHashPath{leaf})[0], Plan([]manifest.ArchiveHashPath{leaf})[1]...)
	require.NoError(t, Prune(resolver, preheated, nil))

	_, err = os.Stat(resolved.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunIsolatesFailingAddressFromSiblings(t *testing.T) {
	locate, root := buildNestedFixture(t)
	resolver := nestedarchive.New(locate, fdpermit.NewPool(2), t.TempDir())

	good := manifest.ArchiveHashPath{Root: root, Inner: []string{"inner.bsa", "deep.txt"}}
	bad := manifest.ArchiveHashPath{Root: root, Inner: []string{"missing.bsa", "whatever.txt"}}

	failed := Run(resolver, []manifest.ArchiveHashPath{good, bad}, 2)

	require.Contains(t, failed, bad.Key())
	assert.NotContains(t, failed, good.Key())

	resolved, err := resolver.Resolve(good)
	require.NoError(t, err)
	data, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	assert.Equal(t, "deep payload", string(data))
}
