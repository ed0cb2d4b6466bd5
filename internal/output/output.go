package output

import (
	"fmt"
	"io"
	"os"

	"github.com/ALT-F4-LLC/porter/internal/render"
)

// maxWarnings caps the record-level warnings printed for one batch.
const maxWarnings = 10

// Writer renders command results either as JSON envelopes on Stdout or as
// styled text, with diagnostics and progress on Stderr.
type Writer struct {
	JSONMode  bool
	QuietMode bool
	Stdout    io.Writer
	Stderr    io.Writer
}

// New creates a Writer for the given mode flags on the process streams.
func New(jsonMode, quietMode bool) *Writer {
	return &Writer{
		JSONMode:  jsonMode,
		QuietMode: quietMode,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// Success writes data as the JSON payload, or message for humans.
func (w *Writer) Success(data any, message string) {
	if w.JSONMode {
		writeJSONSuccess(w.Stdout, data, message)
		return
	}
	writeHumanSuccess(w.Stdout, message)
}

// Error writes err and returns the exit code for code. JSON errors go to
// Stdout so the envelope stays the only structured output.
func (w *Writer) Error(err error, code ErrorCode) int {
	if w.JSONMode {
		writeJSONError(w.Stdout, err, code)
	} else {
		writeHumanError(w.Stderr, err)
	}
	return ExitCodeForError(code)
}

// Info writes a diagnostic line. Silent in quiet and JSON modes.
func (w *Writer) Info(format string, args ...any) {
	if w.QuietMode || w.JSONMode {
		return
	}
	writeHumanNote(w.Stderr, "ℹ", "", "8", fmt.Sprintf(format, args...))
}

// Warn writes a warning. Quiet mode still shows warnings; JSON mode does not.
func (w *Writer) Warn(format string, args ...any) {
	if w.JSONMode {
		return
	}
	writeHumanNote(w.Stderr, "⚠", "Warning:", "3", fmt.Sprintf(format, args...))
}

// Warnings writes the first few msgs as warnings and counts the rest.
func (w *Writer) Warnings(msgs []string) {
	for i, m := range msgs {
		if i == maxWarnings {
			w.Warn("... and %d more", len(msgs)-maxWarnings)
			return
		}
		w.Warn("%s", m)
	}
}

// Hint prints the command that continues an interrupted session. It is kept
// in quiet mode, since a failed run is otherwise unrecoverable by hand.
func (w *Writer) Hint(format string, args ...any) {
	if w.JSONMode {
		return
	}
	writeHumanNote(w.Stderr, "→", "", "6", fmt.Sprintf(format, args...))
}

// Progress returns a progress line on Stderr, or nil (which draws nothing)
// in quiet and JSON modes.
func (w *Writer) Progress(label string) *render.Progress {
	if w.QuietMode || w.JSONMode {
		return nil
	}
	return render.NewProgress(w.Stderr, label)
}
