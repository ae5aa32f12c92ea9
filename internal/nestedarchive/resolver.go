// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nestedarchive resolves addresses that point at files nested
// inside one or more archives, sharing extraction work across
// concurrent callers: a singleflight.Group collapses concurrent
// resolves of the same address into one extraction, and a map
// remembers the result for subsequent lookups.
package nestedarchive

import (
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/fdpermit"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// Resolved is a handle on a resolved address's bytes on disk.
// Resolved values returned by Resolve are owned by the Resolver's
// cache, not by the caller: several callers may be handed the same
// *Resolved for the same address, and none of them closes it
// directly. A nested address's temp file and file-descriptor permit
// are released only by Prune, typically called once by the preheat
// planner after the last directive referencing the
// address has run.
type Resolved struct {
	Path   string
	holder *fdpermit.TempFileHolder
}

// Locate resolves a root archive's content hash to its local download
// path, handed in by internal/downloadcache.
type Locate func(rootHash hashing.H) (string, bool)

type cacheState struct {
	mu     sync.Mutex
	ready  map[string]*Resolved
	failed map[string]error
}

// Resolver resolves nested-archive addresses over a set of downloaded
// root archives.
type Resolver struct {
	locate  Locate
	permits *fdpermit.Pool
	detect  func(open archivefmt.Opener) (archivefmt.Kind, error)
	tempDir string
	lists   *archivefmt.ListCache
	state   cacheState
	sf      singleflight.Group
}

// listCacheSize bounds how many parent-archive listings stay memoized
// while resolving a batch of nested addresses.
const listCacheSize = 256

// New constructs a Resolver. locate answers where a root archive's
// downloaded file lives; permits bounds concurrent file-descriptor
// use; tempDir is where extracted nested files are staged.
func New(locate Locate, permits *fdpermit.Pool, tempDir string) *Resolver {
	lists, _ := archivefmt.NewListCache(listCacheSize) // errs only on a non-positive size
	return &Resolver{
		locate:  locate,
		permits: permits,
		detect:  archivefmt.DetectFile,
		tempDir: tempDir,
		lists:   lists,
		state: cacheState{
			ready:  make(map[string]*Resolved),
			failed: make(map[string]error),
		},
	}
}

// Resolve materializes the file a names: root addresses borrow
// the downloaded file directly; nested addresses are extracted at
// most once regardless of how many goroutines call Resolve
// concurrently for the same address.
func (r *Resolver) Resolve(a manifest.ArchiveHashPath) (*Resolved, error) {
	if a.Depth() == 0 {
		path, ok := r.locate(a.Root)
		if !ok {
			return nil, errors.Errorf("no downloaded archive found for root hash %s", hashing.Encode(a.Root))
		}
		return &Resolved{Path: path}, nil
	}

	key := a.Key()

	r.state.mu.Lock()
	if ready, ok := r.state.ready[key]; ok {
		r.state.mu.Unlock()
		return ready, nil
	}
	if err, ok := r.state.failed[key]; ok {
		r.state.mu.Unlock()
		return nil, err
	}
	r.state.mu.Unlock()

	result, err, _ := r.sf.Do(key, func() (any, error) {
		// A caller that missed the check above can arrive after an
		// earlier flight for key has finished; reuse its outcome.
		r.state.mu.Lock()
		ready, ok := r.state.ready[key]
		prevErr, failed := r.state.failed[key]
		r.state.mu.Unlock()
		if ok {
			return ready, nil
		}
		if failed {
			return nil, prevErr
		}
		return r.extract(a)
	})
	if err != nil {
		r.state.mu.Lock()
		r.state.failed[key] = err
		r.state.mu.Unlock()
		return nil, err
	}
	return result.(*Resolved), nil
}

// Prune releases the temp file and permit backing a, if any. Pruning
// an address that was never
// resolved, or a root address, is a no-op.
func (r *Resolver) Prune(a manifest.ArchiveHashPath) error {
	if a.Depth() == 0 {
		return nil
	}
	key := a.Key()
	r.state.mu.Lock()
	resolved, ok := r.state.ready[key]
	delete(r.state.ready, key)
	delete(r.state.failed, key)
	r.state.mu.Unlock()
	if !ok || resolved.holder == nil {
		return nil
	}
	return resolved.holder.Close()
}

func (r *Resolver) extract(a manifest.ArchiveHashPath) (*Resolved, error) {
	parentAddr, segment, ok := a.Parent()
	if !ok {
		return nil, errors.Errorf("address %s has no parent to extract from", a.Key())
	}

	parent, err := r.Resolve(parentAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving parent of %s", a.Key())
	}

	permit, err := r.permits.AcquireBlocking()
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring permit to extract %s", a.Key())
	}

	kind, err := r.detect(func() (io.ReadCloser, error) { return os.Open(parent.Path) })
	if err != nil {
		permit.Release()
		return nil, errors.Wrapf(err, "identifying archive format for %s", parentAddr.Key())
	}

	archive := archivefmt.Open(kind, func() (io.ReadCloser, error) { return os.Open(parent.Path) })

	entry, err := r.matchEntry(parentAddr.Key(), archive, segment)
	if err != nil {
		permit.Release()
		return nil, errors.Wrapf(err, "locating %q in %s", segment, parentAddr.Key())
	}

	out, err := os.CreateTemp(r.tempDir, "nested-*.bin")
	if err != nil {
		permit.Release()
		return nil, errors.Wrap(err, "creating temp file for nested extraction")
	}
	outPath := out.Name()

	extractErr := archive.ExtractMany([]string{entry}, func(path string) (io.Writer, bool) {
		if path == entry {
			return out, true
		}
		return nil, false
	})
	closeErr := out.Close()
	if extractErr != nil {
		os.Remove(outPath)
		permit.Release()
		return nil, errors.Wrapf(extractErr, "extracting %q from %s", segment, parentAddr.Key())
	}
	if closeErr != nil {
		os.Remove(outPath)
		permit.Release()
		return nil, errors.Wrap(closeErr, "closing extracted temp file")
	}

	holder := fdpermit.NewTempFileHolder(outPath, permit)
	resolved := &Resolved{Path: outPath, holder: holder}

	r.state.mu.Lock()
	r.state.ready[a.Key()] = resolved
	r.state.mu.Unlock()

	return resolved, nil
}

// matchEntry maps a manifest-declared inner segment to the archive's
// actual entry path, tolerating backslashes and case differences
// between how the manifest spells the path and how the archive lists
// it. The listing is memoized per parent address, so sibling segments
// extracted from the same parent list it only once.
func (r *Resolver) matchEntry(parentKey string, archive archivefmt.Archive, segment string) (string, error) {
	want := normalizeSegment(segment)
	entries, err := r.lists.Get(parentKey, archive)
	if err != nil {
		return "", errors.Wrap(err, "listing parent archive")
	}
	for _, e := range entries {
		if e.Path == want {
			return e.Path, nil
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.Path, want) {
			return e.Path, nil
		}
	}
	return "", errors.Errorf("no entry matches %q among %d entries", segment, len(entries))
}

func normalizeSegment(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)[1:]
}
