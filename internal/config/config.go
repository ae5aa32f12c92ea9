// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the installer's YAML configuration file
// through viper/mapstructure.
package config

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Downloaders holds the download-source configuration.
type Downloaders struct {
	DownloadsDirectory string `mapstructure:"downloads_directory" yaml:"downloads_directory"`
	Nexus              struct {
		APIKey string `mapstructure:"api_key" yaml:"api_key"`
	} `mapstructure:"nexus" yaml:"nexus"`
}

// Installation holds the install-target configuration.
type Installation struct {
	WabbajackFilePath         string   `mapstructure:"wabbajack_file_path" yaml:"wabbajack_file_path"`
	InstallationPath          string   `mapstructure:"installation_path" yaml:"installation_path"`
	WhitelistFailedDirectives []string `mapstructure:"whitelist_failed_directives" yaml:"whitelist_failed_directives"`

	// HashWhitelistExtensions lists output extensions verified by size
	// only. Defaults to ["dds"] when unset.
	HashWhitelistExtensions []string `mapstructure:"hash_whitelist_extensions" yaml:"hash_whitelist_extensions"`
}

// Game is one `games.<Name>` entry. InstalledVersion is
// optional; when set it lets a GameFileSource's declared minimum
// version be checked before the file is read.
type Game struct {
	RootDirectory    string `mapstructure:"root_directory" yaml:"root_directory"`
	InstalledVersion string `mapstructure:"installed_version" yaml:"installed_version,omitempty"`
}

// Config is the top-level YAML document the core consumes.
type Config struct {
	Downloaders  Downloaders     `mapstructure:"downloaders" yaml:"downloaders"`
	Installation Installation    `mapstructure:"installation" yaml:"installation"`
	Games        map[string]Game `mapstructure:"games" yaml:"games"`
}

// Load reads and decodes path as YAML into a Config, applying
// defaults for fields the file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("installation.hash_whitelist_extensions", []string{"dds"})

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, nil
}

// Dump renders the effective configuration back to YAML, with defaults
// applied, for debug logging. The API key is masked.
func (c *Config) Dump() (string, error) {
	masked := *c
	if masked.Downloaders.Nexus.APIKey != "" {
		masked.Downloaders.Nexus.APIKey = "********"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return "", errors.Wrap(err, "rendering config")
	}
	return string(out), nil
}

// HashWhitelistSet renders Installation.HashWhitelistExtensions as the
// lowercase, no-dot set internal/transform.Context.HashWhitelist wants.
func (c *Config) HashWhitelistSet() map[string]bool {
	set := make(map[string]bool, len(c.Installation.HashWhitelistExtensions))
	for _, ext := range c.Installation.HashWhitelistExtensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return set
}

// GameRootDirectories renders Games as the map
// downloadcache/sources.Config.GameRootDirectory wants.
func (c *Config) GameRootDirectories() map[string]string {
	roots := make(map[string]string, len(c.Games))
	for name, g := range c.Games {
		roots[name] = g.RootDirectory
	}
	return roots
}

// GameVersions renders Games as the map
// downloadcache/sources.Config.GameVersion wants.
func (c *Config) GameVersions() map[string]string {
	versions := make(map[string]string, len(c.Games))
	for name, g := range c.Games {
		if g.InstalledVersion != "" {
			versions[name] = g.InstalledVersion
		}
	}
	return versions
}

// SuggestGameName returns the closest configured game name to want
// when want has no `games.<Name>` entry, for a "did you mean" error
// message.
func (c *Config) SuggestGameName(want string) (string, bool) {
	if _, ok := c.Games[want]; ok {
		return "", false
	}
	names := make([]string, 0, len(c.Games))
	for name := range c.Games {
		names = append(names, name)
	}
	ranked := fuzzy.RankFindNormalizedFold(want, names)
	// A configured name whose letters appear in order inside want (an
	// abbreviation such as "SkyrimSE" for "SkyrimSpecialEdition") is a
	// near miss too.
	for _, name := range names {
		if fuzzy.MatchNormalizedFold(name, want) {
			ranked = append(ranked, fuzzy.Rank{Source: want, Target: name, Distance: fuzzy.LevenshteinDistance(want, name)})
		}
	}
	if len(ranked) == 0 {
		return "", false
	}
	ranked.Sort()
	return ranked[0].Target, true
}
