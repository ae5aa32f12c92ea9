// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transform

import (
	"os"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/octodiff"
)

// FromArchiveExecutor resolves the directive's address, stream-copies
// the resolved file to target, then re-reads the output to check its
// size and hash (whitelisted extensions are size-checked only).
type FromArchiveExecutor struct{}

func (FromArchiveExecutor) Execute(ctx *Context, d manifest.Directive) error {
	resolved, err := ctx.Resolver.Resolve(d.ArchiveHashPath)
	if err != nil {
		return errors.Wrapf(err, "resolving %s for %s", d.ArchiveHashPath.Key(), d.Summary())
	}

	src, err := os.Open(resolved.Path)
	if err != nil {
		return errors.Wrapf(err, "opening resolved source for %s", d.Summary())
	}
	defer src.Close()

	out, path, err := ctx.prepareOutput(d.To)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := ctx.copyWithProgress(out, src); err != nil {
		return errors.Wrapf(err, "copying from-archive payload for %s", d.Summary())
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	if err := ctx.verifyOutput(path, d.Size, d.Hash, d.To); err != nil {
		return errors.Wrapf(err, "verifying %s", d.Summary())
	}
	return nil
}

// PatchedFromArchiveExecutor resolves the directive's address, fetches
// the delta payload by patch-id from the distribution container,
// streams the source through internal/octodiff against that delta, and
// writes the patched bytes to target, then re-reads the output to
// check its size and hash.
type PatchedFromArchiveExecutor struct{}

func (PatchedFromArchiveExecutor) Execute(ctx *Context, d manifest.Directive) error {
	resolved, err := ctx.Resolver.Resolve(d.ArchiveHashPath)
	if err != nil {
		return errors.Wrapf(err, "resolving %s for %s", d.ArchiveHashPath.Key(), d.Summary())
	}

	source, err := os.Open(resolved.Path)
	if err != nil {
		return errors.Wrapf(err, "opening patch source for %s", d.Summary())
	}
	defer source.Close()

	delta, err := ctx.PatchStore.OpenPatch(d.PatchID.String())
	if err != nil {
		return errors.Wrapf(err, "opening patch payload %s for %s", d.PatchID, d.Summary())
	}
	defer delta.Close()

	patched, err := octodiff.New(source, delta)
	if err != nil {
		return errors.Wrapf(err, "constructing patch reader for %s", d.Summary())
	}

	out, path, err := ctx.prepareOutput(d.To)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := ctx.copyWithProgress(out, patched); err != nil {
		return errors.Wrapf(err, "applying patch for %s", d.Summary())
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	if err := ctx.verifyOutput(path, d.Size, d.Hash, d.To); err != nil {
		return errors.Wrapf(err, "verifying %s", d.Summary())
	}
	return nil
}
