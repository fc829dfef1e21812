package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the root Cobra command for the flagstream CLI.
// It registers the listen, cursor and health commands.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "flagstream",
		Short:        "Feature-flag update stream client",
		Long:         "flagstream holds a server-sent events session open, delivers its signals to a consumer, and persists the resume cursor.",
		SilenceUsage: true,
	}
	root.AddCommand(NewListenCommand(), NewCursorCommand(), NewHealthCommand())
	return root
}
