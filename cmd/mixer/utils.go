package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// getCommandLineExecutable returns the invoked binary's base name, used as
// the root command's Use string so --help matches however the operator
// actually ran it.
func getCommandLineExecutable() string {
	execPath, err := os.Executable()
	if err != nil {
		return "mixer"
	}
	return filepath.Base(execPath)
}

// FatalErrorHandler prints msg to the command's configured output and
// exits with code. code follows spec §6/§7: 2 for a configuration error,
// 3 for a forced GPU initialization failure, 1 for anything else cobra
// itself surfaces.
func FatalErrorHandler(cmd *cobra.Command, msg string, code int) {
	if cmd != nil {
		fmt.Fprintln(cmd.OutOrStderr(), msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}
