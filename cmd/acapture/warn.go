package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"go2tv.app/acapture/env"
)

var yellow = lipgloss.Color("#FBBF24")

// warner prints non-fatal failures as a yellow WARNING line on w. Colour is
// dropped automatically when w is not a terminal.
func warner(w io.Writer) env.Warner {
	label := lipgloss.NewRenderer(w).NewStyle().Foreground(yellow).Bold(true).Render("WARNING:")
	return env.WarnFunc(func(message string) {
		fmt.Fprintf(w, "%s %s\n", label, message)
	})
}
