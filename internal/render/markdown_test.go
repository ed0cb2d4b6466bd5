package render

import (
	"os"
	"testing"
)

func TestColorsEnabled(t *testing.T) {
	tests := []struct {
		name    string
		noColor *string
		term    string
		want    bool
	}{
		{"default", nil, "xterm-256color", true},
		{"no color set", strPtr("1"), "xterm", false},
		{"no color empty", strPtr(""), "xterm", false},
		{"dumb terminal", nil, "dumb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TERM", tt.term)
			if tt.noColor != nil {
				t.Setenv("NO_COLOR", *tt.noColor)
			} else {
				unsetNoColor(t)
			}
			if got := ColorsEnabled(); got != tt.want {
				t.Errorf("ColorsEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderMarkdownPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	src := "# products.json\n\n- **Type:** json\n"
	got, err := RenderMarkdown(src)
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if got != src {
		t.Errorf("got %q, want source unchanged", got)
	}

	if got, _ := RenderMarkdown(""); got != "" {
		t.Errorf("empty input rendered as %q", got)
	}
}

func strPtr(s string) *string { return &s }

// unsetNoColor removes NO_COLOR for the test; t.Setenv restores it after.
func unsetNoColor(t *testing.T) {
	t.Helper()
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
}
