package ui

import (
	"fmt"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // yellow
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderWarn returns s in the warning (yellow) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderFail returns s in the failure (red) color.
func RenderFail(s string) string { return paint(colorFail, s) }

// RenderStatus colors an event status by outcome.
func RenderStatus(s model.EventStatus) string {
	switch s {
	case model.StatusFinished:
		return paint(colorOK, string(s))
	case model.StatusFailed:
		return paint(colorFail, string(s))
	case model.StatusStarted, model.StatusScheduled:
		return paint(colorWarn, string(s))
	}
	return paint(colorMuted, string(s))
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
