// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Status line styles. lipgloss drops the colors when stdout is not a
// terminal, so piped output stays plain text.
var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	emphasisStyle = lipgloss.NewStyle().Bold(true)
)

// Success prints a completed step: "✓ message".
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), fmt.Sprintf(format, args...))
}

// Warning prints a step that succeeded with caveats: "! message".
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warningStyle.Render("!"), fmt.Sprintf(format, args...))
}

// Progress prints a step that is starting: "› message".
func Progress(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", progressStyle.Render("›"), fmt.Sprintf(format, args...))
}

// Emphasis prints value indented on its own line, for things the user
// is meant to copy, such as a share URL.
func Emphasis(w io.Writer, value string) {
	fmt.Fprintf(w, "  %s\n", emphasisStyle.Render(value))
}
