// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	"context"
	"os/exec"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/pkg/errors"
)

// ErrNoExternalTool is returned by externalExtract when none of the
// candidate binaries are on PATH.
var ErrNoExternalTool = errors.New("no external extraction tool available")

// externalExtract shells out to an external 7z/unrar binary for an
// archive genericArchive could not identify. Arguments are passed to
// exec.Command as an argv slice, never through a shell, so the
// archive or destination path can never break out of its argument;
// shellquote only renders that same argv as a single string for the
// error message a caller logs, it is never parsed back into a shell.
func externalExtract(ctx context.Context, archivePath, destDir string) error {
	candidates := [][]string{
		{"7z", "x", "-y", "-o" + destDir, archivePath},
		{"unrar", "x", "-y", archivePath, destDir + "/"},
	}

	var lastErr error
	for _, args := range candidates {
		bin, err := exec.LookPath(args[0])
		if err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, bin, args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			lastErr = errors.Wrapf(err, "running %s: %s", shellquote.Join(args...), string(out))
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrNoExternalTool
}
