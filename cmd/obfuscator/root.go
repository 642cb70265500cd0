package main

import (
	"github.com/spf13/cobra"

	"github.com/zskulcsar/codeobfuscator/internal/version"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "obfuscator",
	Short: "Project-wide identifier obfuscator",
	Long: `obfuscator renames every in-project identifier in a source tree to an
opaque token while preserving runtime behavior, and can additionally scan
the same tree for duplicate functions and methods.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("obfuscator version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}
