package connect

import (
	"github.com/spf13/cobra"
)

func NewConnectCommand() *cobra.Command {
	var debug bool
	var channelID string

	cmd := &cobra.Command{
		Use:     "connect",
		Aliases: []string{"c"},
		Short:   "Connect to the gateway and chat interactively",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return connectCmd(debug, channelID)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "Channel to join on startup")

	return cmd
}
