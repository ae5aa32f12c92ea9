// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import "io"

// Entry is one file inside an archive, named by its archive-relative
// path using forward slashes regardless of the host container's own
// path convention.
type Entry struct {
	Path  string
	Size  int64
	IsDir bool
}

// Opener lazily opens an archive's backing file for a List/ExtractMany
// call. Archives are opened fresh per call rather than held open,
// since nested-archive resolution (internal/nestedarchive) may need to
// read the same archive many times across the life of an install.
type Opener func() (io.ReadCloser, error)

// Archive is the uniform surface every backing codec in this package
// implements.
type Archive interface {
	// List enumerates every entry the archive contains.
	List() ([]Entry, error)
	// ExtractMany copies paths to the writers want returns for them.
	// want is consulted once per entry seen; entries for which it
	// returns (nil, false) are skipped. A single pass over the
	// archive serves every requested path. Any element of paths never
	// matched against an archive entry is an error naming every such
	// missing path, not a silent no-op.
	ExtractMany(paths []string, want func(path string) (io.Writer, bool)) error
}

// missingPaths reports which of paths never appeared in matched,
// preserving the order they were requested in. Implementations of
// Archive.ExtractMany call this once their pass over the archive's
// entries is complete, so missing paths surface as one error naming
// every missing entry.
func missingPaths(paths []string, matched map[string]bool) []string {
	var missing []string
	for _, p := range paths {
		if !matched[normalizePath(p)] {
			missing = append(missing, p)
		}
	}
	return missing
}
