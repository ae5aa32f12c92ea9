// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// genericArchive backs zip, 7z and rar through mholt/archives, which
// in turn delegates 7z to bodgit/sevenzip and rar to
// nwaples/rardecode/v2. It only needs to re-identify the format once
// per call since archives.Identify inspects the stream itself. When
// the archive also carries a filesystem path (SourcePath), a format
// mholt/archives fails to identify falls back to an external 7z/unrar
// binary instead of failing outright.
type genericArchive struct {
	open       Opener
	SourcePath string
}

// NewGeneric wraps an Opener whose content mholt/archives already
// knows how to read (zip, 7z, rar, tar and their compressed variants).
func NewGeneric(open Opener) Archive {
	return &genericArchive{open: open}
}

// NewGenericWithFallback is NewGeneric plus an external-tool fallback
// for archives mholt/archives cannot identify, keyed by the archive's
// own path on disk.
func NewGenericWithFallback(open Opener, sourcePath string) Archive {
	return &genericArchive{open: open, SourcePath: sourcePath}
}

// normalizePath brings an archive-internal path to the forward-slash,
// NFC-normalized form the rest of the installer keys paths by, so
// Unicode paths stay stable across archives produced on different
// platforms.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)[1:]
	return norm.NFC.String(p)
}

func (a *genericArchive) List() ([]Entry, error) {
	rc, err := a.open()
	if err != nil {
		return nil, errors.Wrap(err, "opening archive for listing")
	}
	defer rc.Close()

	ctx := context.Background()
	format, stream, err := archives.Identify(ctx, "", rc)
	if err != nil {
		return nil, errors.Wrap(err, "identifying archive format")
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, errors.Errorf("format %T does not support extraction", format)
	}

	var entries []Entry
	err = extractor.Extract(ctx, stream, func(_ context.Context, f archives.FileInfo) error {
		if f.IsDir() {
			return nil
		}
		entries = append(entries, Entry{
			Path: normalizePath(f.NameInArchive),
			Size: f.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing archive contents")
	}
	return entries, nil
}

func (a *genericArchive) ExtractMany(paths []string, want func(path string) (io.Writer, bool)) error {
	rc, err := a.open()
	if err != nil {
		return errors.Wrap(err, "opening archive for extraction")
	}
	defer rc.Close()

	ctx := context.Background()
	format, stream, err := archives.Identify(ctx, "", rc)
	if err != nil {
		if a.SourcePath != "" {
			return a.extractManyExternal(ctx, paths, want)
		}
		return errors.Wrap(err, "identifying archive format")
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return errors.Errorf("format %T does not support extraction", format)
	}

	matched := make(map[string]bool, len(paths))
	err = extractor.Extract(ctx, stream, func(_ context.Context, f archives.FileInfo) error {
		if f.IsDir() {
			return nil
		}
		p := normalizePath(f.NameInArchive)
		w, ok := want(p)
		if !ok {
			return nil
		}
		src, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %q within archive", f.NameInArchive)
		}
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			return errors.Wrapf(err, "extracting %q", f.NameInArchive)
		}
		matched[p] = true
		return nil
	})
	if err != nil {
		return err
	}
	if missing := missingPaths(paths, matched); len(missing) > 0 {
		return errors.Errorf("path(s) not found in archive: %s", strings.Join(missing, ", "))
	}
	return nil
}

// extractManyExternal extracts a into a scratch directory via an
// external 7z/unrar binary, then feeds whichever entries want asks
// for into its writers.
func (a *genericArchive) extractManyExternal(ctx context.Context, paths []string, want func(path string) (io.Writer, bool)) error {
	scratch, err := os.MkdirTemp("", "archivefmt-fallback-*")
	if err != nil {
		return errors.Wrap(err, "creating scratch directory for external extraction")
	}
	defer os.RemoveAll(scratch)

	if err := externalExtract(ctx, a.SourcePath, scratch); err != nil {
		return errors.Wrapf(err, "falling back to external tool for %s", a.SourcePath)
	}

	matched := make(map[string]bool, len(paths))
	walkErr := filepath.Walk(scratch, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(scratch, p)
		if err != nil {
			return err
		}
		relPath := normalizePath(rel)
		w, ok := want(relPath)
		if !ok {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, "opening extracted %q", rel)
		}
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			return err
		}
		matched[relPath] = true
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if missing := missingPaths(paths, matched); len(missing) > 0 {
		return errors.Errorf("path(s) not found in archive: %s", strings.Join(missing, ", "))
	}
	return nil
}
