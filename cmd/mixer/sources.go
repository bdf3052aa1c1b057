package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ndimixer/mixer/pkg/videoio"
)

// newListSourcesCmd implements the `--list-sources` behavior named in
// spec §6 as a subcommand (its output format is left unspecified there;
// one discovered source name per line, discovery order, is the format
// chosen here).
func newListSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-sources",
		Short: "List discovered upstream network-video sources and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			videoio.InitGStreamer()
			source := videoio.NewGstSource(0, 0)
			names, err := source.Discover()
			if err != nil {
				Fatal(cmd, err.Error(), 1)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
