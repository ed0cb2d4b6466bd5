package output

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

// ErrorCode represents a machine-readable error classification.
type ErrorCode string

// Error code constants.
const (
	ErrGeneral    ErrorCode = "GENERAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrPermission ErrorCode = "PERMISSION_DENIED"
)

// Exit code constants.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitNotFound   = 2
	ExitValidation = 3
	ExitConflict   = 4
	ExitPermission = 5
)

// ExitCodeForError maps an ErrorCode to its corresponding exit code.
func ExitCodeForError(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return ExitNotFound
	case ErrValidation:
		return ExitValidation
	case ErrConflict:
		return ExitConflict
	case ErrPermission:
		return ExitPermission
	default:
		return ExitGeneral
	}
}

// CodeFor classifies a pipeline error. Missing and expired sessions report
// as not found.
func CodeFor(err error) ErrorCode {
	switch model.KindOf(err) {
	case model.KindValidation:
		return ErrValidation
	case model.KindSession:
		return ErrNotFound
	case model.KindConflict:
		return ErrConflict
	case model.KindPermission:
		return ErrPermission
	}
	if errors.Is(err, model.ErrNotFound) {
		return ErrNotFound
	}
	return ErrGeneral
}

type successEnvelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// errorEnvelope carries the pipeline error kind next to the code so callers
// can tell a failed record batch from an unusable session.
type errorEnvelope struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error"`
	Code  ErrorCode       `json:"code"`
	Kind  model.ErrorKind `json:"kind,omitempty"`
}

func writeJSONSuccess(w io.Writer, data any, message string) {
	encodeJSON(w, successEnvelope{OK: true, Data: data, Message: message})
}

// writeJSONError writes an error envelope. Errors that never passed through
// the pipeline carry no kind.
func writeJSONError(w io.Writer, err error, code ErrorCode) {
	env := errorEnvelope{Error: err.Error(), Code: code}
	var perr *model.Error
	if errors.As(err, &perr) {
		env.Kind = perr.Kind
	}
	encodeJSON(w, env)
}

// encodeJSON writes v as one line. Product names and URLs keep their
// ampersands and angle brackets unescaped.
func encodeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
