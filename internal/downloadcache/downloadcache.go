// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloadcache maps declared archives to verified local
// files: for every declared archive, reuse an
// already-downloaded and verified file or stream a fresh copy from
// its resolved source, interleaving verification and transfer under
// bounded concurrency.
package downloadcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hoolamike-go/hoolamike/internal/downloadcache/sources"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// Result pairs a declared archive with where it ended up on disk.
type Result struct {
	Descriptor manifest.ArchiveDescriptor
	LocalPath  string
}

// Failure records one declared archive that could not be fetched or
// verified. One archive's failure never blocks the others: Sync keeps
// going and reports every failure alongside the successes.
type Failure struct {
	Descriptor manifest.ArchiveDescriptor
	Err        error
}

// Cache drives the sync operation against one downloads directory.
type Cache struct {
	downloadDir string
	registry    *sources.Registry

	verifySem   *semaphore.Weighted
	transferSem *semaphore.Weighted
}

// DefaultVerifyConcurrency and DefaultTransferConcurrency bound how
// many verifications and transfers run at once.
const (
	DefaultVerifyConcurrency   = 5
	DefaultTransferConcurrency = 10
)

func New(downloadDir string, registry *sources.Registry) *Cache {
	return &Cache{
		downloadDir: downloadDir,
		registry:    registry,
		verifySem:   semaphore.NewWeighted(DefaultVerifyConcurrency),
		transferSem: semaphore.NewWeighted(DefaultTransferConcurrency),
	}
}

// Sync verifies an existing download or fetches and verifies a new
// one for each declared archive, in parallel bounded by the cache's
// verify/transfer semaphores. Archives that succeed are returned even
// when others fail; each failed archive is reported separately so the
// caller can skip just the directives that depend on it.
func (c *Cache) Sync(ctx context.Context, archives []manifest.Archive) ([]Result, []Failure) {
	results := make([]Result, len(archives))
	errs := make([]error, len(archives))

	var wg sync.WaitGroup
	for i, archive := range archives {
		i, archive := i, archive
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.syncOne(ctx, archive)
			results[i] = result
			errs[i] = err
		}()
	}
	wg.Wait()

	synced := make([]Result, 0, len(archives))
	var failures []Failure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, Failure{
				Descriptor: archives[i].ArchiveDescriptor,
				Err:        errors.Wrapf(err, "archive %q", archives[i].Name),
			})
			continue
		}
		synced = append(synced, results[i])
	}
	return synced, failures
}

func (c *Cache) syncOne(ctx context.Context, archive manifest.Archive) (Result, error) {
	output := filepath.Join(c.downloadDir, archive.Name)

	if err := c.verifySem.Acquire(ctx, 1); err != nil {
		return Result{}, errors.Wrap(err, "acquiring verify permit")
	}
	existsAndVerified := false
	if _, statErr := os.Stat(output); statErr == nil {
		if checkErr := hashing.Check(output, archive.Size, archive.Hash); checkErr == nil {
			existsAndVerified = true
		}
	}
	c.verifySem.Release(1)

	if existsAndVerified {
		return Result{Descriptor: archive.ArchiveDescriptor, LocalPath: output}, nil
	}

	if err := c.transferSem.Acquire(ctx, 1); err != nil {
		return Result{}, errors.Wrap(err, "acquiring transfer permit")
	}
	defer c.transferSem.Release(1)

	resolution, err := c.registry.Resolve(ctx, archive.State, archive.Size)
	if err != nil {
		return Result{}, errors.Wrapf(err, "resolving source for %q", archive.Name)
	}
	defer resolution.Body.Close()

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating download directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return Result{}, errors.Wrap(err, "creating temp download file")
	}
	tmpPath := tmp.Name()

	verifying := hashing.NewVerifyingReader(resolution.Body, archive.Hash)
	sizeChecked := hashing.NewSizeValidatingReader(verifying, archive.Size)

	_, copyErr := io.Copy(tmp, sizeChecked)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return Result{}, errors.Wrapf(copyErr, "downloading %q", archive.Name)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return Result{}, errors.Wrap(closeErr, "closing downloaded file")
	}

	if err := os.Rename(tmpPath, output); err != nil {
		os.Remove(tmpPath)
		return Result{}, errors.Wrapf(err, "moving downloaded %q into place", archive.Name)
	}

	return Result{Descriptor: archive.ArchiveDescriptor, LocalPath: output}, nil
}
