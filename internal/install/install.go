// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package install wires every subsystem into one install run:
// load the manifest, sync declared archives, resolve nested addresses,
// run every directive through its transform executor, and report
// successes/failures. It is the one package every other component is
// assembled through; cmd/hoolamike calls only this package.
package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hoolamike-go/hoolamike/internal/config"
	"github.com/hoolamike-go/hoolamike/internal/downloadcache"
	"github.com/hoolamike-go/hoolamike/internal/downloadcache/sources"
	"github.com/hoolamike-go/hoolamike/internal/fdpermit"
	"github.com/hoolamike-go/hoolamike/internal/hashing"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
	"github.com/hoolamike-go/hoolamike/internal/nestedarchive"
	"github.com/hoolamike-go/hoolamike/internal/progress"
	"github.com/hoolamike-go/hoolamike/internal/scheduler"
	"github.com/hoolamike-go/hoolamike/internal/transform"
)

// Extension is a post-install hook registered by the caller, run once
// every directive has succeeded.
type Extension interface {
	Name() string
	Run(ctx context.Context, installationPath string) error
}

// DebugOptions carries the install command's debug toggles.
type DebugOptions struct {
	SkipVerifyAndDownloads bool
	StartFromDirective     string // directive stable hash, base64
	SkipKind               manifest.DirectiveKind
	Contains               string
}

// Options configures a Run.
type Options struct {
	Concurrency int
	Debug       DebugOptions
	Extensions  []Extension
	Logger      zerolog.Logger

	// Metrics, if set, receives a progress.Collector for the duration
	// of the run. Callers embedding the installer in a service can pass
	// prometheus.DefaultRegisterer; the CLI leaves it nil.
	Metrics prometheus.Registerer
}

// outputStagedStore backs transform.StagedFileSource for CreateBSA
// directives by reading a FileState's Path relative to the
// installation output directory: the staged input is a file an earlier
// directive in the same batch already wrote to the output tree.
type outputStagedStore struct {
	outputDir string
}

func (s outputStagedStore) OpenStaged(id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.outputDir, filepath.FromSlash(id)))
}

// Run executes one full install against cfg, returning the scheduler's
// report. It never returns a nil report when it returns a nil error.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*scheduler.Report, error) {
	logger := opts.Logger

	if cfg.Installation.WabbajackFilePath == "" || cfg.Installation.InstallationPath == "" {
		return nil, errors.Wrap(ErrConfiguration, "installation.wabbajack_file_path and installation.installation_path are required")
	}

	logger.Info().Str("component", "INSTALL").Msg("loading manifest")
	m, err := loadManifest(cfg.Installation.WabbajackFilePath)
	if err != nil {
		return nil, errors.Wrap(ErrConfiguration, err.Error())
	}

	if err := os.MkdirAll(cfg.Installation.InstallationPath, 0o755); err != nil {
		return nil, errors.Wrapf(ErrResource, "creating installation directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Downloaders.DownloadsDirectory, 0o755); err != nil {
		return nil, errors.Wrapf(ErrResource, "creating downloads directory: %v", err)
	}

	if err := checkGameDirectories(cfg, m); err != nil {
		return nil, err
	}

	registry := sources.NewRegistry(sources.Config{
		NexusAPIKey:       cfg.Downloaders.Nexus.APIKey,
		GameRootDirectory: cfg.GameRootDirectories(),
		GameVersion:       cfg.GameVersions(),
	})

	locate := map[hashing.H]string{}
	archiveFailures := map[hashing.H]error{}
	if !opts.Debug.SkipVerifyAndDownloads {
		logger.Info().Str("component", "DOWNLOAD").Int("count", len(m.Archives)).Msg("syncing declared archives")
		cache := downloadcache.New(cfg.Downloaders.DownloadsDirectory, registry)
		results, syncFailures := cache.Sync(ctx, m.Archives)
		for _, r := range results {
			locate[r.Descriptor.Hash] = r.LocalPath
		}
		for _, f := range syncFailures {
			logger.Warn().Err(f.Err).Str("component", "DOWNLOAD").Str("archive", f.Descriptor.Name).Msg("archive unavailable; its directives will be skipped")
			archiveFailures[f.Descriptor.Hash] = f.Err
		}
	} else {
		for _, a := range m.Archives {
			locate[a.Hash] = filepath.Join(cfg.Downloaders.DownloadsDirectory, a.Name)
		}
	}

	permits := fdpermit.NewPool(fdpermit.Concurrency(opts.Concurrency))
	resolver := nestedarchive.New(func(h hashing.H) (string, bool) {
		path, ok := locate[h]
		return path, ok
	}, permits, os.TempDir())

	counters := progress.NewCounters()
	if opts.Metrics != nil {
		collector := progress.NewCollector(counters)
		if err := opts.Metrics.Register(collector); err != nil {
			logger.Warn().Err(err).Msg("registering progress metrics collector")
		} else {
			defer opts.Metrics.Unregister(collector)
		}
	}
	transformCtx := &transform.Context{
		OutputDir:     cfg.Installation.InstallationPath,
		Resolver:      resolver,
		Counters:      counters,
		HashWhitelist: cfg.HashWhitelistSet(),
		InlineStore:   newContainerStore(cfg.Installation.WabbajackFilePath),
		PatchStore:    newContainerStore(cfg.Installation.WabbajackFilePath),
		Substitutions: map[string]string{
			"{GAME_PATH}":      firstGameRoot(cfg),
			"{OUTPUT_PATH}":    cfg.Installation.InstallationPath,
			"{DOWNLOADS_PATH}": cfg.Downloaders.DownloadsDirectory,
		},
	}

	directives := filterDirectives(m.Directives, opts.Debug)
	directives, blocked := partitionByFailedArchives(directives, archiveFailures)

	var totalBytes int64
	for _, d := range directives {
		totalBytes += d.Size
	}
	counters.SetTotal(totalBytes)

	sched := &scheduler.Scheduler{
		Registry:    transform.NewRegistry(outputStagedStore{outputDir: cfg.Installation.InstallationPath}),
		Resolver:    resolver,
		Context:     transformCtx,
		Concurrency: opts.Concurrency,
	}

	logger.Info().Str("component", "SCHEDULER").Int("count", len(directives)).Msg("running directives")
	report := sched.Run(directives)
	report.Failures = append(report.Failures, blocked...)
	report.Failures = suppressWhitelisted(report.Failures, m.Directives, cfg.Installation.WhitelistFailedDirectives)

	if len(report.Failures) == 0 {
		for _, ext := range opts.Extensions {
			logger.Info().Str("component", "EXTENSION").Str("name", ext.Name()).Msg("running post-install extension")
			if err := ext.Run(ctx, cfg.Installation.InstallationPath); err != nil {
				report.Failures = append(report.Failures, scheduler.Failure{Directive: "extension:" + ext.Name(), Err: err})
			}
		}
	}

	return &report, nil
}

// partitionByFailedArchives splits out the directives that read from an
// archive whose download failed. Those become failures up front; every
// directive backed by a successfully-synced archive still runs.
func partitionByFailedArchives(directives []manifest.Directive, archiveFailures map[hashing.H]error) ([]manifest.Directive, []scheduler.Failure) {
	if len(archiveFailures) == 0 {
		return directives, nil
	}
	runnable := make([]manifest.Directive, 0, len(directives))
	var blocked []scheduler.Failure
	for _, d := range directives {
		switch d.Kind {
		case manifest.KindFromArchive, manifest.KindPatchedFromArchive, manifest.KindTransformedTexture:
			if err := archiveFailures[d.ArchiveHashPath.Root]; err != nil {
				blocked = append(blocked, scheduler.Failure{Directive: d.Summary(), Err: err})
				continue
			}
		}
		runnable = append(runnable, d)
	}
	return runnable, blocked
}

// checkGameDirectories fails before any work begins when the manifest
// references a game-file source whose game has no games.<Name> entry,
// suggesting the closest configured name when one is a near miss.
func checkGameDirectories(cfg *config.Config, m *manifest.Manifest) error {
	for _, a := range m.Archives {
		if a.State.Kind != manifest.SourceGameFile {
			continue
		}
		game := a.State.GameFileGame
		if _, ok := cfg.Games[game]; ok {
			continue
		}
		if suggestion, ok := cfg.SuggestGameName(game); ok {
			return errors.Wrapf(ErrConfiguration, "archive %q needs games.%s.root_directory (did you mean %q?)", a.Name, game, suggestion)
		}
		return errors.Wrapf(ErrConfiguration, "archive %q needs games.%s.root_directory", a.Name, game)
	}
	return nil
}

func firstGameRoot(cfg *config.Config) string {
	for _, g := range cfg.Games {
		return g.RootDirectory
	}
	return ""
}

func filterDirectives(directives []manifest.Directive, debug DebugOptions) []manifest.Directive {
	out := make([]manifest.Directive, 0, len(directives))
	started := debug.StartFromDirective == ""
	for _, d := range directives {
		if !started {
			stable, err := d.StableHash()
			if err == nil && hashing.Encode(stable) == debug.StartFromDirective {
				started = true
			} else {
				continue
			}
		}
		if debug.SkipKind != "" && d.Kind == debug.SkipKind {
			continue
		}
		if debug.Contains != "" && !strings.Contains(d.To, debug.Contains) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func suppressWhitelisted(failures []scheduler.Failure, directives []manifest.Directive, whitelist []string) []scheduler.Failure {
	if len(whitelist) == 0 || len(failures) == 0 {
		return failures
	}
	allowed := make(map[string]bool, len(whitelist))
	for _, h := range whitelist {
		allowed[h] = true
	}
	byTo := make(map[string]manifest.Directive, len(directives))
	for _, d := range directives {
		byTo[d.Summary()] = d
	}

	kept := failures[:0]
	for _, f := range failures {
		d, ok := byTo[f.Directive]
		if ok {
			if stable, err := d.StableHash(); err == nil && allowed[hashing.Encode(stable)] {
				continue
			}
		}
		kept = append(kept, f)
	}
	return kept
}
