package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/oxyio/netmon/internal/errors"
)

// JSONEnvelope wraps --json output in one shape for scripts.
type JSONEnvelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *JSONError `json:"error,omitempty"`
}

// JSONError is the machine readable form of an error.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrCodeUnknown marks errors that carry no code of their own.
const ErrCodeUnknown = "UNKNOWN"

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data any) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError converts err to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON maps err to a JSONError. Structured errors keep their code.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}
	var nmErr *errors.Error
	if stderrors.As(err, &nmErr) {
		return &JSONError{
			Code:       nmErr.Code,
			Message:    nmErr.Message,
			Suggestion: nmErr.Suggestion,
		}
	}
	return &JSONError{Code: ErrCodeUnknown, Message: err.Error()}
}
