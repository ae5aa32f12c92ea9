// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoolamike-go/hoolamike/internal/ambient"
	"github.com/hoolamike-go/hoolamike/internal/config"
	"github.com/hoolamike-go/hoolamike/internal/install"
	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// RunInstallCommand wires the `install` verb and its debug flags.
func RunInstallCommand() *cobra.Command {
	var (
		configPath             string
		debugLogPath           string
		debug                  bool
		concurrency            int
		skipVerifyAndDownloads bool
		startFromDirective     string
		skipKind               string
		contains               string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Run an installation against a config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := ambient.Configure(ambient.Options{LogPath: debugLogPath, Debug: debug})

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dump, err := cfg.Dump(); err == nil {
				logger.Debug().Msg("effective configuration:\n" + dump)
			}

			report, err := install.Run(cmd.Context(), cfg, install.Options{
				Concurrency: concurrency,
				Logger:      logger,
				Debug: install.DebugOptions{
					SkipVerifyAndDownloads: skipVerifyAndDownloads,
					StartFromDirective:     startFromDirective,
					SkipKind:               manifest.DirectiveKind(skipKind),
					Contains:               contains,
				},
			})
			if err != nil {
				return err
			}

			cmd.Printf("%d directive(s) skipped (already correct), %d completed\n", report.Skipped, report.Completed)
			if len(report.Failures) > 0 {
				cmd.Printf("%d failure(s):\n", len(report.Failures))
				for i, f := range report.Failures {
					cmd.Printf("  %d. %s\n", i+1, f.Error())
				}
				return fmt.Errorf("%d directive(s) failed", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "hoolamike.yaml", "Path to the YAML config file")
	cmd.Flags().StringVar(&debugLogPath, "log-path", "", "Also write logs to this rotated file, in addition to stderr")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level logging")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Directive/extraction concurrency (0 = auto)")
	cmd.Flags().BoolVar(&skipVerifyAndDownloads, "skip-verify-and-downloads", false, "Assume declared archives are already present under downloads_directory")
	cmd.Flags().StringVar(&startFromDirective, "start-from-directive", "", "Resume from the directive whose stable hash matches this value")
	cmd.Flags().StringVar(&skipKind, "skip-kind", "", "Skip every directive of this $type")
	cmd.Flags().StringVar(&contains, "contains", "", "Only run directives whose target path contains this substring")

	return cmd
}
