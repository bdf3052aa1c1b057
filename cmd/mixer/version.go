package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// GetMixerVersion reports the running binary's VCS revision, falling back
// to "<unknown>" for a binary built without module/VCS build info (e.g.
// `go run`).
func GetMixerVersion() string {
	version := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, kv := range info.Settings {
			if kv.Value == "" {
				continue
			}
			if kv.Key == "vcs.revision" {
				version = kv.Value
			}
		}
	}
	return version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(GetMixerVersion())
		},
	}
}
