package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/huddle/cmd/huddle/internal"
	"github.com/tinyland-inc/huddle/pkg/api"
)

func NewChannelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "channels",
		Aliases: []string{"ch"},
		Short:   "List channels visible to the current user",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return channelsCmd()
		},
	}
}

func channelsCmd() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := api.NewClient(cfg.Server.URL, cfg.Server.Token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channels, err := client.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("error listing channels: %w", err)
	}

	if len(channels) == 0 {
		fmt.Println("No channels.")
		return nil
	}
	for _, ch := range channels {
		access := ""
		if ch.Permissions.ReadOnly {
			access = " (read-only)"
		}
		fmt.Printf("%-24s %-12s %3d members%s\n", ch.Name, ch.Type, len(ch.MemberIDs), access)
	}
	return nil
}
