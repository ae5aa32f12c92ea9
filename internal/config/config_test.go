// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoolamike.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadDecodesDeclaredKeys(t *testing.T) {
	path := writeConfig(t, `
downloaders:
  downloads_directory: /tmp/downloads
  nexus:
    api_key: test-key
installation:
  wabbajack_file_path: /tmp/modlist.wabbajack
  installation_path: /tmp/install
  whitelist_failed_directives: ["abc123"]
games:
  SkyrimSE:
    root_directory: /games/skyrimse
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/downloads", cfg.Downloaders.DownloadsDirectory)
	assert.Equal(t, "test-key", cfg.Downloaders.Nexus.APIKey)
	assert.Equal(t, "/tmp/install", cfg.Installation.InstallationPath)
	assert.Equal(t, []string{"abc123"}, cfg.Installation.WhitelistFailedDirectives)
	assert.Equal(t, "/games/skyrimse", cfg.Games["SkyrimSE"].RootDirectory)
}

func TestLoadDefaultsHashWhitelistExtensions(t *testing.T) {
	path := writeConfig(t, `
installation:
  installation_path: /tmp/install
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"dds": true}, cfg.HashWhitelistSet())
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestSuggestGameNameFindsClosestMatch(t *testing.T) {
	cfg := &Config{Games: map[string]Game{
		"SkyrimSE":  {RootDirectory: "/games/sse"},
		"Fallout4":  {RootDirectory: "/games/fo4"},
		"Morrowind": {RootDirectory: "/games/mw"},
	}}

	suggestion, ok := cfg.SuggestGameName("SkyrimSpecialEdition")
	require.True(t, ok)
	assert.Equal(t, "SkyrimSE", suggestion)
}

func TestSuggestGameNameSkipsExactMatch(t *testing.T) {
	cfg := &Config{Games: map[string]Game{"SkyrimSE": {}}}
	_, ok := cfg.SuggestGameName("SkyrimSE")
	assert.False(t, ok)
}

func TestDumpMasksAPIKey(t *testing.T) {
	cfg := &Config{}
	cfg.Downloaders.Nexus.APIKey = "secret-key"
	cfg.Downloaders.DownloadsDirectory = "/tmp/downloads"

	dump, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, dump, "secret-key")
	assert.Contains(t, dump, "downloads_directory: /tmp/downloads")
}

func TestGameVersionsSkipsUnconfiguredEntries(t *testing.T) {
	cfg := &Config{Games: map[string]Game{
		"SkyrimSE": {RootDirectory: "/games/sse", InstalledVersion: "1.6.1170"},
		"Fallout4": {RootDirectory: "/games/fo4"},
	}}

	assert.Equal(t, map[string]string{"SkyrimSE": "1.6.1170"}, cfg.GameVersions())
}
