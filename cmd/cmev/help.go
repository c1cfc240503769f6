package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/ui"
)

// helpRule styles one kind of token in Cobra's plain-text help.
type helpRule struct {
	re    *regexp.Regexp
	style func(parts []string) string
}

var helpRules = []helpRule{
	// Section headers: an unindented line ending with ":" ("Events:", "Flags:").
	{
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`),
		style: func(p []string) string { return ui.RenderAccent(strings.TrimSpace(p[0])) },
	},
	// Command names: two-space indent, a word, then the description gap.
	{
		re:    regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		style: func(p []string) string { return p[1] + ui.RenderCommand(p[2]) + p[3] },
	},
	// Flag type annotations, e.g. "--server string".
	{
		re:    regexp.MustCompile(`(--?\S+\s+)(string|int|duration|strings|stringSlice)\b`),
		style: func(p []string) string { return p[1] + ui.RenderMuted(p[2]) },
	},
	// Default values.
	{
		re:    regexp.MustCompile(`\(default [^)]*\)`),
		style: func(p []string) string { return ui.RenderMuted(p[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput applies every help rule in order.
func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}
