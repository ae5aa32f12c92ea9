// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "hoolamike",
		Short: "Install a Wabbajack-style modlist distribution",
	}
	root.AddCommand(RunInstallCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
