// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transform

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// InlineFileExecutor stream-copies the same-named
// entry out of the distribution container to the target path, then
// re-reads the written file to check its size and hash.
type InlineFileExecutor struct{}

func (InlineFileExecutor) Execute(ctx *Context, d manifest.Directive) error {
	src, err := ctx.InlineStore.Open(d.SourceDataID.String())
	if err != nil {
		return errors.Wrapf(err, "opening inline source %s for %s", d.SourceDataID, d.Summary())
	}
	defer src.Close()

	out, path, err := ctx.prepareOutput(d.To)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := ctx.copyWithProgress(out, src); err != nil {
		return errors.Wrapf(err, "copying inline file for %s", d.Summary())
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	if err := ctx.verifyOutput(path, d.Size, d.Hash, d.To); err != nil {
		return errors.Wrapf(err, "verifying %s", d.Summary())
	}
	return nil
}

// RemappedInlineFileExecutor is identical to
// InlineFileExecutor, except every occurrence of a configured token is
// substituted with an installation-context path as the bytes stream
// through. Because the replacement may change the byte length, the
// whole payload is buffered rather than copied byte-for-byte; inline
// files this directive applies to are small config/script text, never
// archive-sized payloads.
type RemappedInlineFileExecutor struct{}

func (RemappedInlineFileExecutor) Execute(ctx *Context, d manifest.Directive) error {
	src, err := ctx.InlineStore.Open(d.SourceDataID.String())
	if err != nil {
		return errors.Wrapf(err, "opening inline source %s for %s", d.SourceDataID, d.Summary())
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return errors.Wrapf(err, "reading inline source for %s", d.Summary())
	}

	for token, replacement := range ctx.Substitutions {
		raw = bytes.ReplaceAll(raw, []byte(token), []byte(replacement))
	}

	out, path, err := ctx.prepareOutput(d.To)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := ctx.copyWithProgress(out, bytes.NewReader(raw)); err != nil {
		return errors.Wrapf(err, "writing remapped inline file for %s", d.Summary())
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	// The substituted output's length and hash differ from the
	// manifest's declared size/hash (those describe the unsubstituted
	// payload), so only existence of the write is asserted here; the
	// scheduler's existence pass never short-circuits this kind for
	// the same reason.
	return nil
}
