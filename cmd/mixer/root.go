// Command mixer is a headless, multi-channel video mixer: it composites a
// network-video input and zero or more browser overlays per channel,
// applies an optional compute-shader filter chain, and sends the result to
// a named upstream-video output at the channel's configured frame rate.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Fatal is the process-wide fatal-error handler, overridable by tests.
var Fatal = FatalErrorHandler

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "mixer",
		Long:  `Headless multi-channel video mixer`,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newListSourcesCmd())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOutput(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		Fatal(rootCmd, err.Error(), 1)
	}
}

func main() {
	Execute()
}
