package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/poller"
	"github.com/alfredjeanlab/cmevents/internal/ui"
)

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printEventTable(w io.Writer, page *model.EventPage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tACTION\tSTATUS\tENTITY\tUSER\tSEEN")
	for _, e := range page.Data {
		status := string(e.Status)
		if model.IsInProgress(e) {
			status += " " + strconv.Itoa(*e.PercentComplete) + "%"
		}
		user := ""
		if e.Username != nil {
			user = *e.Username
		}
		seen := "no"
		if e.Seen {
			seen = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Created.String(),
			e.Action,
			status,
			truncate(ui.EntityLabel(e), 40),
			user,
			seen,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d events (page %d of %d, %d total)\n", len(page.Data), page.Page, page.Pages, page.Results)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printPollerState(w io.Writer, s *poller.State, now time.Time) {
	fmt.Fprintf(w, "Multiplier:    %dx\n", s.Multiplier)
	if !s.NextDeadline.IsZero() {
		fmt.Fprintf(w, "Next fetch:    %s (in %s)\n",
			s.NextDeadline.Local().Format("15:04:05"),
			max(s.NextDeadline.Sub(now), 0).Round(time.Second))
	}
	fmt.Fprintf(w, "In progress:   %t\n", s.InProgress)
	fmt.Fprintf(w, "Failures:      %d\n", s.ConsecutiveFailures)
	if s.Stale {
		fmt.Fprintf(w, "Stale:         %s\n", ui.RenderWarn("yes"))
	} else {
		fmt.Fprintln(w, "Stale:         no")
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error:    %s\n", ui.RenderFail(s.LastError))
	}
}
