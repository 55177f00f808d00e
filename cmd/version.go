package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version, set at build time via ldflags.
// Example: go build -ldflags "-X github.com/kestrelmoor/harvester-cli/cmd.Version=1.0.0"
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the harvester version",
		Args:  cobra.NoArgs,
		// Printing the version must not require a valid config, so the
		// root's config-loading hook is overridden with a no-op.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
