// huddle - terminal client for the Huddle team-collaboration gateway

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/huddle/cmd/huddle/internal"
	"github.com/tinyland-inc/huddle/cmd/huddle/internal/channels"
	"github.com/tinyland-inc/huddle/cmd/huddle/internal/connect"
	"github.com/tinyland-inc/huddle/cmd/huddle/internal/login"
	"github.com/tinyland-inc/huddle/cmd/huddle/internal/version"
)

func NewHuddleCommand() *cobra.Command {
	short := fmt.Sprintf("%s huddle - Team chat client v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "huddle",
		Short:   short,
		Example: "huddle connect",
	}

	cmd.AddCommand(
		connect.NewConnectCommand(),
		channels.NewChannelsCommand(),
		login.NewLoginCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewHuddleCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
