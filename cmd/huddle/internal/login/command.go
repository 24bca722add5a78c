package login

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/huddle/cmd/huddle/internal"
	"github.com/tinyland-inc/huddle/pkg/api"
	"github.com/tinyland-inc/huddle/pkg/auth"
	"github.com/tinyland-inc/huddle/pkg/config"
)

func NewLoginCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the server URL and access token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return loginCmd(serverURL)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "Server base URL (e.g. https://chat.example.com)")

	return cmd
}

func loginCmd(serverURL string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if cfg.Server.URL == "" {
		return config.ErrNoServerURL
	}

	cred, err := auth.LoginPasteToken(cfg.Server.URL, os.Stdin)
	if err != nil {
		return err
	}
	cfg.Server.Token = cred.Token

	// verify before persisting
	client, err := api.NewClient(cfg.Server.URL, cfg.Server.Token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.ListChannels(ctx); err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}

	if err := config.SaveConfig(internal.GetConfigPath(), cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	fmt.Printf("%s Logged in to %s\n", internal.Logo, cfg.Server.URL)
	fmt.Printf("Config saved to %s\n", internal.GetConfigPath())
	return nil
}
