package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// maxMarkdownWidth bounds the wrap width of rendered markdown.
const maxMarkdownWidth = 100

// ColorsEnabled reports whether output may be styled: NO_COLOR unset (any
// value disables) and TERM not "dumb".
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// RenderMarkdown renders markdown for the terminal, wrapped to the width of
// stdout. Without colors the source is returned as-is.
func RenderMarkdown(content string) (string, error) {
	if content == "" || !ColorsEnabled() {
		return content, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(markdownWidth()),
	)
	if err != nil {
		return content, err
	}
	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return strings.TrimSpace(out), nil
}

func markdownWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || width > maxMarkdownWidth {
		return maxMarkdownWidth
	}
	return width
}
