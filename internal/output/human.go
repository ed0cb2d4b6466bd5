package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/porter/internal/render"
)

// writeHumanSuccess prints message. Rendered blocks (tables, summaries)
// are printed as-is; a single line gets a check mark.
func writeHumanSuccess(w io.Writer, message string) {
	if message == "" {
		return
	}
	if strings.Contains(message, "\n") {
		fmt.Fprintln(w, message)
		return
	}
	if render.ColorsEnabled() {
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✔")
		fmt.Fprintf(w, "%s %s\n", icon, message)
		return
	}
	fmt.Fprintln(w, message)
}

func writeHumanError(w io.Writer, err error) {
	writeHumanNote(w, "✘", "Error:", "1", err.Error())
}

// writeHumanNote prints "icon label msg" in color, or "label msg" without.
// A labelled note is bold.
func writeHumanNote(w io.Writer, icon, label, color, msg string) {
	if !render.ColorsEnabled() {
		if label != "" {
			msg = label + " " + msg
		}
		fmt.Fprintln(w, msg)
		return
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	if label == "" {
		fmt.Fprintf(w, "%s %s\n", style.Render(icon), style.Render(msg))
		return
	}
	style = style.Bold(true)
	fmt.Fprintf(w, "%s %s %s\n", style.Render(icon), style.Render(label), msg)
}
