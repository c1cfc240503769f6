package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

var seenCmd = &cobra.Command{
	Use:     "seen [event-id]",
	Short:   "Mark an event and everything before it seen",
	Long:    "Mark an event and every earlier event seen, upstream and in the server's cache.\nWith no id, the newest cached event is used.",
	GroupID: "events",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var id int64
		if len(args) == 1 {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			id = n
		} else {
			page, err := serverClient.ListEvents(ctx, &model.EventFilter{Sort: "-id", PageSize: 1})
			if err != nil {
				return fmt.Errorf("finding newest event: %w", err)
			}
			if len(page.Data) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}
			id = page.Data[0].ID
		}

		resp, err := serverClient.MarkSeen(ctx, id)
		if err != nil {
			return fmt.Errorf("marking event %d seen: %w", id, err)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), resp)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d events seen through #%d\n", resp.Marked, resp.ID)
		}
		return nil
	},
}
