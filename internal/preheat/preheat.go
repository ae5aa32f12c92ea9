// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package preheat groups nested-archive addresses by ancestor depth
// and extracts each depth's ancestors in parallel before moving to the
// next, capping concurrent work with a channel-based run semaphore.
package preheat

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
)

// chunkSize bounds how many extractions one worker task takes.
const chunkSize = 64

// Plan groups every address reachable from bottomLevel by nesting
// depth, depth 1 first (the depth right under a root archive).
func Plan(bottomLevel []manifest.ArchiveHashPath) [][]manifest.ArchiveHashPath {
	seen := make(map[string]manifest.ArchiveHashPath)
	for _, addr := range bottomLevel {
		for cur := addr; ; {
			if cur.Depth() == 0 {
				break
			}
			if _, ok := seen[cur.Key()]; ok {
				break
			}
			seen[cur.Key()] = cur
			parent, _, ok := cur.Parent()
			if !ok {
				break
			}
			cur = parent
		}
	}

	byDepth := make(map[int][]manifest.ArchiveHashPath)
	maxDepth := 0
	for _, addr := range seen {
		byDepth[addr.Depth()] = append(byDepth[addr.Depth()], addr)
		if addr.Depth() > maxDepth {
			maxDepth = addr.Depth()
		}
	}

	plan := make([][]manifest.ArchiveHashPath, 0, maxDepth)
	for depth := 1; depth <= maxDepth; depth++ {
		group := byDepth[depth]
		sort.Slice(group, func(i, j int) bool { return group[i].Key() < group[j].Key() })
		plan = append(plan, group)
	}
	return plan
}

// Run extracts every address bottomLevel depends on, depth by depth,
// with unrestricted parallelism inside a depth and a strict barrier
// between depths. A failing address does not stop its siblings: every
// other address at its depth (and every deeper address not descended
// from it) is still extracted, and the failure is reported per address
// in the returned map, keyed by ArchiveHashPath.Key. An empty map
// means every address was preheated. Once every directive referencing
// the preheated set has consumed it, call Prune with the same
// addresses to reclaim their temp files.
func Run(resolver *nestedarchive.Resolver, bottomLevel []manifest.ArchiveHashPath, workers int) map[string]error {
	if workers < 1 {
		workers = 1
	}
	failed := make(map[string]error)
	for _, depth := range Plan(bottomLevel) {
		for _, f := range runDepth(resolver, depth, workers) {
			failed[f.key] = f.err
		}
	}
	return failed
}

type addressError struct {
	key string
	err error
}

func runDepth(resolver *nestedarchive.Resolver, addrs []manifest.ArchiveHashPath, workers int) []addressError {
	if len(addrs) == 0 {
		return nil
	}

	shuffled := make([]manifest.ArchiveHashPath, len(addrs))
	copy(shuffled, addrs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	var chunks [][]manifest.ArchiveHashPath
	for i := 0; i < len(shuffled); i += chunkSize {
		end := i + chunkSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		chunks = append(chunks, shuffled[i:end])
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	results := make([][]addressError, len(chunks))

	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = extractChunk(resolver, chunk)
		}()
	}
	wg.Wait()

	var failures []addressError
	for _, r := range results {
		failures = append(failures, r...)
	}
	return failures
}

// extractChunk resolves every address in chunk, recording failures per
// address instead of stopping at the first one.
func extractChunk(resolver *nestedarchive.Resolver, chunk []manifest.ArchiveHashPath) []addressError {
	var failures []addressError
	for _, addr := range chunk {
		if _, err := resolver.Resolve(addr); err != nil {
			failures = append(failures, addressError{
				key: addr.Key(),
				err: errors.Wrapf(err, "preheating %s", addr.Key()),
			})
		}
	}
	return failures
}

// Prune releases every address's temp file that is not itself a
// bottom-level source of some directive. Callers pass the full set of
// addresses that were preheated and the subset that directives still
// need directly; everything else is dropped.
func Prune(resolver *nestedarchive.Resolver, preheated, stillNeeded []manifest.ArchiveHashPath) error {
	needed := make(map[string]bool, len(stillNeeded))
	for _, addr := range stillNeeded {
		needed[addr.Key()] = true
	}
	var firstErr error
	for _, addr := range preheated {
		if needed[addr.Key()] {
			continue
		}
		if err := resolver.Prune(addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
