// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package transform implements the six directive executors: the
// per-directive-kind logic the scheduler (internal/scheduler)
// dispatches into once a directive's inputs are resolved.
package transform

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
	"github.com/hoolamike-go/hoolamike/internal/progress"
)

// Context bundles every executor's shared dependencies.
type Context struct {
	OutputDir     string
	Resolver      *nestedarchive.Resolver
	Counters      *progress.Counters
	HashWhitelist map[string]bool // file extensions (no dot, lowercase) verified by size only
	InlineStore   InlineFileStore
	PatchStore    PatchStore
	Substitutions map[string]string
}

// InlineFileStore fetches the bytes for an InlineFile/RemappedInlineFile
// directive's SourceDataID, typically the manifest distribution's own
// embedded payload bundle.
type InlineFileStore interface {
	Open(sourceDataID string) (io.ReadCloser, error)
}

// PatchStore fetches an octodiff delta payload by patch ID for
// PatchedFromArchive directives.
type PatchStore interface {
	OpenPatch(patchID string) (io.ReadCloser, error)
}

// targetPath resolves a directive's To field under the output
// directory.
func (c *Context) targetPath(to string) string {
	return filepath.Join(c.OutputDir, filepath.FromSlash(to))
}

// TargetPath is targetPath exported for the scheduler's existence
// pass, which needs to probe a directive's output before
// deciding whether to dispatch it at all.
func (c *Context) TargetPath(to string) string { return c.targetPath(to) }

// IsWhitelisted is isWhitelisted exported for the same reason.
func (c *Context) IsWhitelisted(to string) bool { return c.isWhitelisted(to) }

func (c *Context) prepareOutput(to string) (*os.File, string, error) {
	path := c.targetPath(to)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", errors.Wrapf(err, "creating parent directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "creating output file %s", path)
	}
	return f, path, nil
}

// isWhitelisted reports whether to's extension is verified by size
// only.
func (c *Context) isWhitelisted(to string) bool {
	ext := filepath.Ext(to)
	if len(ext) > 0 {
		ext = ext[1:]
	}
	return c.HashWhitelist[ext]
}

// verifyOutput re-reads path and checks its size (always) and hash
// (unless whitelisted).
func (c *Context) verifyOutput(path string, size int64, hash hashing.H, to string) error {
	if c.isWhitelisted(to) {
		return hashing.CheckSize(path, size)
	}
	return hashing.Check(path, size, hash)
}

// copyWithProgress streams src to dst, reporting bytes to Counters if
// present.
func (c *Context) copyWithProgress(dst io.Writer, src io.Reader) (int64, error) {
	if c.Counters != nil {
		src = progress.NewCountingReader(src, c.Counters)
	}
	return io.Copy(dst, src)
}

// Executor runs one directive to completion.
type Executor interface {
	Execute(ctx *Context, d manifest.Directive) error
}
