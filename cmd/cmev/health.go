package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/client"
	"github.com/alfredjeanlab/cmevents/internal/config"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the cmev server",
	Long:    "Check the health of the cmev server. With --upstream, check the Events API\ndirectly using CMEV_API_URL and CMEV_API_TOKEN instead.",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if upstream, _ := cmd.Flags().GetBool("upstream"); upstream {
			return upstreamHealth(cmd)
		}

		resp, err := serverClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), resp)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", resp.Status)
		}

		if resp.Stale {
			return errors.New("event feed is stale")
		}
		return nil
	},
}

func upstreamHealth(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.APIToken == "" {
		return errors.New("CMEV_API_TOKEN is required")
	}
	api := client.NewAPIClient(cfg.APIURL, cfg.APIToken, cfg.RateLimit)
	if err := api.Health(cmd.Context()); err != nil {
		return err
	}
	if jsonOutput {
		printJSON(cmd.OutOrStdout(), client.HealthResponse{Status: "ok"})
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Events API: ok (%s)\n", cfg.APIURL)
	}
	return nil
}

func init() {
	healthCmd.Flags().Bool("upstream", false, "check the Events API instead of the cmev server")
}
