// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transform

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/archivefmt"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// StagedFileSource resolves a CreateBSA/CreateBA2 FileState's Path to
// the bytes staged for it earlier in the install.
type StagedFileSource interface {
	OpenStaged(path string) ([]byte, error)
}

// CreateArchiveExecutor builds a BSA or BA2
// from a directive's staged FileStates, dispatching on the directive
// state's header magic the way a create-bsa directive's State field
// names the container kind.
type CreateArchiveExecutor struct {
	Staged StagedFileSource
}

func (e CreateArchiveExecutor) Execute(ctx *Context, d manifest.Directive) error {
	if e.Staged == nil {
		return errors.Errorf("create-archive executor for %s has no staged-file source configured", d.Summary())
	}

	kind := strings.ToUpper(d.State.HeaderMagic)
	var write func(state manifest.DirectiveState, fileStates []manifest.FileState, files map[string][]byte, outPath string) error
	switch {
	case strings.HasPrefix(kind, "BSA"):
		write = writeBSA
	case strings.HasPrefix(kind, "BTDX"):
		write = writeBA2
	default:
		return errors.Errorf("unrecognized archive header magic %q for %s", d.State.HeaderMagic, d.Summary())
	}

	files := make(map[string][]byte, len(d.FileStates))
	for _, fs := range d.FileStates {
		data, err := e.Staged.OpenStaged(fs.Path)
		if err != nil {
			return errors.Wrapf(err, "opening staged input %q for %s", fs.Path, d.Summary())
		}
		files[fs.Path] = data
	}

	path := ctx.targetPath(d.To)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".create-archive-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file for archive assembly")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := write(d.State, d.FileStates, files, tmpPath); err != nil {
		return errors.Wrapf(err, "assembling archive for %s", d.Summary())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "moving assembled archive into place for %s", d.Summary())
	}
	return nil
}

func writeBSA(state manifest.DirectiveState, fileStates []manifest.FileState, files map[string][]byte, outPath string) error {
	b := archivefmt.NewBSABuilder(state.ArchiveFlags, state.FileFlags)
	for _, fs := range fileStates {
		b.Add(fs.Path, files[fs.Path], archivefmt.BSAFileMeta{
			DirHash:    fs.DirHash,
			NameHash:   fs.NameHash,
			Compressed: fs.Compressed,
		})
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := b.Write(out); err != nil {
		return err
	}
	return out.Sync()
}

func writeBA2(_ manifest.DirectiveState, fileStates []manifest.FileState, files map[string][]byte, outPath string) error {
	b := archivefmt.NewBA2Builder()
	for _, fs := range fileStates {
		b.Add(fs.Path, files[fs.Path], archivefmt.BA2FileMeta{
			NameHash:   fs.NameHash,
			DirHash:    fs.DirHash,
			Extension:  fs.Extension,
			Compressed: fs.Compressed,
		})
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := b.Write(out); err != nil {
		return err
	}
	return out.Sync()
}
