package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// EntityLabel names an event's primary entity as "type label", falling back
// to "type #id".
func EntityLabel(e model.Event) string {
	if e.Entity == nil {
		return "account"
	}
	if e.Entity.Label != nil && *e.Entity.Label != "" {
		return e.Entity.Type + " " + *e.Entity.Label
	}
	return e.Entity.Type + " #" + strconv.FormatInt(e.Entity.ID, 10)
}

// EventLine renders one event as a single terminal line:
//
//	#123  2024-05-01T12:00:00  linode_boot  finished  linode web-1  alice
//
// Unseen events carry a marker; in-progress events show their percentage.
func EventLine(e model.Event) string {
	var b strings.Builder
	if e.Seen {
		b.WriteString("  ")
	} else {
		b.WriteString(RenderAccent("●") + " ")
	}
	fmt.Fprintf(&b, "%s  %s  %s  %s",
		RenderMuted("#"+strconv.FormatInt(e.ID, 10)),
		e.Created.String(),
		RenderCommand(string(e.Action)),
		RenderStatus(e.Status),
	)
	if model.IsInProgress(e) && e.PercentComplete != nil {
		fmt.Fprintf(&b, " %d%%", *e.PercentComplete)
	}
	b.WriteString("  " + EntityLabel(e))
	if e.Username != nil && *e.Username != "" {
		b.WriteString("  " + RenderMuted(*e.Username))
	}
	if e.Deleted != nil {
		b.WriteString("  " + RenderMuted("(deleted)"))
	}
	return b.String()
}
