// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler runs a manifest's full directive set to completion
//: an existence pass that skips already-correct outputs,
// a partition by directive kind, and an ordered dispatch across those
// partitions with bounded concurrency, reusing the channel-based run
// semaphore internal/preheat uses for its own depth-by-depth fan-out.
package scheduler

import (
	"sync"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
	"github.com/hoolamike-go/hoolamike/internal/preheat"
	"github.com/hoolamike-go/hoolamike/internal/transform"
)

// archiveChunkBytes bounds how many directive-bytes worth of
// archive-path directives are preheated and streamed together at
// once.
const archiveChunkBytes = 32 << 30

// Failure records one directive's execution error, keyed by its
// printable identity.
type Failure struct {
	Directive string
	Err       error
}

func (f Failure) Error() string { return f.Directive + ": " + f.Err.Error() }

// Report is the scheduler's final account of a Run: directives it
// skipped because they were already correct, and every failure
// encountered across every partition.
type Report struct {
	Skipped    int
	Completed  int
	BytesTotal int64
	Failures   []Failure
}

// Scheduler wires the dependencies Run needs to execute one manifest's
// directives.
type Scheduler struct {
	Registry    *transform.Registry
	Resolver    *nestedarchive.Resolver
	Context     *transform.Context
	Concurrency int
}

// Run drives directives through the existence pass, the per-kind
// partitions, and failure aggregation, in order.
func (s *Scheduler) Run(directives []manifest.Directive) Report {
	concurrency := s.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var report Report
	var mu sync.Mutex

	pending := make([]manifest.Directive, 0, len(directives))
	for _, d := range directives {
		if s.alreadyComplete(d) {
			mu.Lock()
			report.Skipped++
			report.BytesTotal += d.Size
			mu.Unlock()
			continue
		}
		pending = append(pending, d)
	}

	byKind := partition(pending)

	record := func(d manifest.Directive, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.BytesTotal += d.Size
		if err != nil {
			report.Failures = append(report.Failures, Failure{Directive: d.Summary(), Err: err})
			return
		}
		report.Completed++
	}

	// Step 3a: inline directives, buffered.
	s.runBuffered(byKind[manifest.KindInlineFile], concurrency, record)

	// Step 3b: archive-path directives, chunked by size with a preheat
	// barrier ahead of each chunk.
	archivePath := append(append(
		append([]manifest.Directive{}, byKind[manifest.KindFromArchive]...),
		byKind[manifest.KindPatchedFromArchive]...),
		byKind[manifest.KindTransformedTexture]...)
	s.runArchivePath(archivePath, concurrency, record)

	// Step 3c: remapped-inline, buffered.
	s.runBuffered(byKind[manifest.KindRemappedInlineFile], concurrency, record)

	// Step 3d: create-archive, sequential; each directive also reads
	// and packs its own inputs one after another.
	for _, d := range byKind[manifest.KindCreateBSA] {
		err := s.Registry.Execute(s.Context, d)
		record(d, err)
	}

	return report
}

func (s *Scheduler) alreadyComplete(d manifest.Directive) bool {
	// A remapped inline file's declared size/hash describe the
	// unsubstituted payload, so an on-disk target can never be proven
	// correct against them; this kind always re-runs.
	if d.Kind == manifest.KindRemappedInlineFile {
		return false
	}
	path := s.Context.TargetPath(d.To)
	if s.Context.IsWhitelisted(d.To) {
		return hashing.CheckSize(path, d.Size) == nil
	}
	return hashing.Check(path, d.Size, d.Hash) == nil
}

func partition(directives []manifest.Directive) map[manifest.DirectiveKind][]manifest.Directive {
	byKind := make(map[manifest.DirectiveKind][]manifest.Directive)
	for _, d := range directives {
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	return byKind
}

func (s *Scheduler) runBuffered(directives []manifest.Directive, concurrency int, record func(manifest.Directive, error)) {
	if len(directives) == 0 {
		return
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, d := range directives {
		d := d
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			record(d, s.Registry.Execute(s.Context, d))
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runArchivePath(directives []manifest.Directive, concurrency int, record func(manifest.Directive, error)) {
	for _, chunk := range chunkBySize(directives, archiveChunkBytes) {
		addresses := make([]manifest.ArchiveHashPath, 0, len(chunk))
		for _, d := range chunk {
			addresses = append(addresses, d.ArchiveHashPath)
		}
		failed := preheat.Run(s.Resolver, addresses, concurrency)

		// A failed address takes down only the directives that depend
		// on it; every other directive in the chunk still runs.
		runnable := make([]manifest.Directive, 0, len(chunk))
		for _, d := range chunk {
			if err := failureFor(failed, d.ArchiveHashPath); err != nil {
				record(d, err)
				continue
			}
			runnable = append(runnable, d)
		}

		s.runBuffered(runnable, concurrency, record)

		plan := preheat.Plan(addresses)
		var preheated []manifest.ArchiveHashPath
		for _, depth := range plan {
			preheated = append(preheated, depth...)
		}
		_ = preheat.Prune(s.Resolver, preheated, nil)
	}
}

// failureFor reports the preheat error affecting a, checking a itself
// and every ancestor, since a directive cannot run when any prefix of
// its address failed to extract.
func failureFor(failed map[string]error, a manifest.ArchiveHashPath) error {
	if len(failed) == 0 {
		return nil
	}
	for cur := a; cur.Depth() > 0; {
		if err := failed[cur.Key()]; err != nil {
			return err
		}
		parent, _, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent
	}
	return nil
}

// chunkBySize groups directives into runs whose summed Size does not
// exceed limit, never splitting a single directive across chunks.
func chunkBySize(directives []manifest.Directive, limit int64) [][]manifest.Directive {
	if len(directives) == 0 {
		return nil
	}
	var chunks [][]manifest.Directive
	var current []manifest.Directive
	var currentSize int64
	for _, d := range directives {
		if currentSize > 0 && currentSize+d.Size > limit {
			chunks = append(chunks, current)
			current = nil
			currentSize = 0
		}
		current = append(current, d)
		currentSize += d.Size
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
