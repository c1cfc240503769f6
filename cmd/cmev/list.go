package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List events cached by the server",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := serverClient.ListEvents(cmd.Context(), listFilter(cmd))
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), page)
		} else {
			printEventTable(cmd.OutOrStdout(), page)
		}
		return nil
	},
}

// listFilter builds a filter from the list flags. Values are checked by the
// server, which reports the offending field.
func listFilter(cmd *cobra.Command) *model.EventFilter {
	status, _ := cmd.Flags().GetStringSlice("status")
	action, _ := cmd.Flags().GetStringSlice("action")
	entityType, _ := cmd.Flags().GetString("entity-type")
	unseen, _ := cmd.Flags().GetBool("unseen")
	sort, _ := cmd.Flags().GetString("sort")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	f := &model.EventFilter{
		EntityType: entityType,
		Unseen:     unseen,
		Sort:       sort,
		Page:       page,
		PageSize:   pageSize,
	}
	for _, s := range status {
		f.Status = append(f.Status, model.EventStatus(s))
	}
	for _, a := range action {
		f.Action = append(f.Action, model.EventAction(a))
	}
	if cmd.Flags().Changed("entity-id") {
		id, _ := cmd.Flags().GetInt64("entity-id")
		f.EntityID = &id
	}
	return f
}

func init() {
	addListFlags(listCmd)
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("status", "s", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceP("action", "a", nil, "filter by action (repeatable)")
	cmd.Flags().String("entity-type", "", "filter by entity type (e.g. linode, volume)")
	cmd.Flags().Int64("entity-id", 0, "filter by primary or secondary entity id")
	cmd.Flags().BoolP("unseen", "u", false, "only unseen events")
	cmd.Flags().String("sort", "", "sort field, prefix - for descending (default -id)")
	cmd.Flags().Int("page", 0, "page number (1-based)")
	cmd.Flags().Int("page-size", 0, "events per page (default 25)")
}
