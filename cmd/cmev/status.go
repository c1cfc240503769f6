package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/poller"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the server's poller state",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		reset, _ := cmd.Flags().GetBool("reset")

		var (
			state *poller.State
			err   error
		)
		if reset {
			state, err = serverClient.ResetPoller(cmd.Context())
		} else {
			state, err = serverClient.PollerState(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("getting poller state: %w", err)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), state)
			return nil
		}
		if reset {
			fmt.Fprintln(cmd.OutOrStdout(), "Backoff reset.")
		}
		printPollerState(cmd.OutOrStdout(), state, time.Now())
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("reset", false, "drop the poller's backoff so it fetches on the next tick")
}
