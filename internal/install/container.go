// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package install

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// manifestEntryName is the distribution container's manifest entry,
// the fixed member name the Wabbajack container format uses.
const manifestEntryName = "modlist"

// containerStore extracts inline-file and patch payloads out of the
// distribution container. Every Open call re-reads the archive,
// matching internal/archivefmt.Archive's Opener-per-call contract.
type containerStore struct {
	path string
}

func newContainerStore(path string) *containerStore {
	return &containerStore{path: path}
}

func (c *containerStore) archive() archivefmt.Archive {
	return archivefmt.NewGenericWithFallback(func() (io.ReadCloser, error) { return os.Open(c.path) }, c.path)
}

// Open implements transform.InlineFileStore: id is the entry name
// inside the container.
func (c *containerStore) Open(id string) (io.ReadCloser, error) {
	return c.extract(id)
}

// OpenPatch implements transform.PatchStore: id is the patch-id-named
// entry.
func (c *containerStore) OpenPatch(id string) (io.ReadCloser, error) {
	return c.extract(id)
}

func (c *containerStore) extract(entryName string) (io.ReadCloser, error) {
	tmp, err := os.CreateTemp("", "container-entry-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file for container entry")
	}
	tmpPath := tmp.Name()

	extractErr := c.archive().ExtractMany([]string{entryName}, func(path string) (io.Writer, bool) {
		if path == entryName {
			return tmp, true
		}
		return nil, false
	})
	closeErr := tmp.Close()
	if extractErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if extractErr != nil {
			return nil, errors.Wrapf(extractErr, "extracting container entry %q", entryName)
		}
		return nil, errors.Wrap(closeErr, "closing extracted container entry")
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(err, "reopening extracted container entry")
	}
	return &selfDeletingFile{File: f, path: tmpPath}, nil
}

type selfDeletingFile struct {
	*os.File
	path string
}

func (f *selfDeletingFile) Close() error {
	closeErr := f.File.Close()
	os.Remove(f.path)
	return closeErr
}

// loadManifest reads and decodes the container's modlist entry.
func loadManifest(containerPath string) (*manifest.Manifest, error) {
	store := newContainerStore(containerPath)
	entry, err := store.extract(manifestEntryName)
	if err != nil {
		return nil, errors.Wrap(err, "extracting manifest entry")
	}
	defer entry.Close()

	var m manifest.Manifest
	if err := json.NewDecoder(entry).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest JSON")
	}
	return &m, nil
}
