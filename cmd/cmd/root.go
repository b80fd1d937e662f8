package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "chkfat"

// Exit codes reported to the shell.
const (
	ExitOK     = 0 // filesystem is clean, or all defects were repaired
	ExitErrors = 2 // defects remain on the filesystem
	ExitFatal  = 4 // the check could not be completed
)

func Execute() int {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - FAT allocation table checker",
	}

	rootCmd.AddCommand(DefineCheckCommand())
	rootCmd.AddCommand(DefinePartitionsCommand())

	if err := rootCmd.Execute(); err != nil {
		return ExitFatal
	}
	return exitCode
}

// exitCode is set by the executed subcommand.
var exitCode int
