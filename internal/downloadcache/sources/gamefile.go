// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// GameFileResolver serves manifest.SourceGameFile: resolve source_dir/relative-path from the
// per-game root directories configured in games.<GameName>.root_directory,
// then check_hash before handing the reader back.
type GameFileResolver struct {
	RootByGame    map[string]string
	VersionByGame map[string]string
}

func (g *GameFileResolver) Resolve(_ context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	root, ok := g.RootByGame[src.GameFileGame]
	if !ok {
		return nil, errors.Errorf("no root_directory configured for game %q", src.GameFileGame)
	}

	if src.GameFileVersion != "" {
		if err := g.checkVersion(src.GameFileGame, src.GameFileVersion); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(root, src.GameFileRelativePath)
	if src.GameFileHash != 0 {
		if err := hashing.CheckHash(path, src.GameFileHash); err != nil {
			return nil, errors.Wrapf(err, "game file %s failed hash check", path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening game file %s", path)
	}
	return &Resolution{Body: f}, nil
}

// checkVersion rejects a GameFile source declaring a minimum game
// version the configured installation is older than. Missing
// configuration (no installed_version set for the game) is not an
// error: the check is advisory, not a hard installation requirement.
func (g *GameFileResolver) checkVersion(game, minimum string) error {
	installed, ok := g.VersionByGame[game]
	if !ok || installed == "" {
		return nil
	}

	want, err := version.NewVersion(minimum)
	if err != nil {
		return nil
	}
	have, err := version.NewVersion(installed)
	if err != nil {
		return nil
	}
	if have.LessThan(want) {
		return errors.Errorf("game %q version %s is older than the %s this modlist requires", game, have, want)
	}
	return nil
}
