package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/ui"
)

// Global JSON output flag
var jsonOutput bool

// warnings collects non-fatal issues for the current command.
var warnings []Warning

// errReported marks an error whose JSON response was already written.
var errReported = errors.New("error reported")

// Warning codes for non-fatal issues.
const (
	WarnSharedMissing = "SHARED_NOTE_MISSING"
	WarnBrokenLinks   = "BROKEN_LINKS"
	WarnBacklinks     = "HAS_BACKLINKS"
	WarnLinkTarget    = "LINK_TARGET_NOT_CREATED"
)

// Response is the standard JSON envelope for all CLI output.
type Response struct {
	OK       bool       `json:"ok"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Warnings []Warning  `json:"warnings,omitempty"`
	Meta     *Meta      `json:"meta,omitempty"`
}

// ErrorInfo contains structured error information.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Warning represents a non-fatal warning.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NoteID  string `json:"note_id,omitempty"`
}

// Meta contains metadata about the response.
type Meta struct {
	Count       int   `json:"count,omitempty"`
	QueryTimeMs int64 `json:"query_time_ms,omitempty"`
}

// suggestedError carries a hint printed under the error in text mode.
type suggestedError struct {
	err        error
	suggestion string
}

func (e *suggestedError) Error() string { return e.err.Error() }
func (e *suggestedError) Unwrap() error { return e.err }

func outputJSON(resp Response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

// writeJSONLine writes v as one compact JSON line, for streaming output.
func writeJSONLine(v any) {
	_ = json.NewEncoder(os.Stdout).Encode(v)
}

// outputSuccess outputs a successful JSON response with any collected warnings.
func outputSuccess(data any, meta *Meta) {
	outputJSON(Response{
		OK:       true,
		Data:     data,
		Warnings: warnings,
		Meta:     meta,
	})
}

func outputError(code, message string, details any, suggestion string) {
	outputJSON(Response{
		OK: false,
		Error: &ErrorInfo{
			Code:       code,
			Message:    message,
			Details:    details,
			Suggestion: suggestion,
		},
		Warnings: warnings,
	})
}

func isJSONOutput() bool {
	return jsonOutput
}

// warn records w for the JSON envelope, or prints it in text mode.
func warn(w Warning) {
	if jsonOutput {
		warnings = append(warnings, w)
		return
	}
	fmt.Fprintln(os.Stderr, ui.Warning(w.Message))
}

// handleError reports err with the code derived from it. In JSON mode the
// error response is written here and errReported is returned so Cobra stays
// quiet but the exit status still fails.
func handleError(err error, suggestion string) error {
	return handleErrorCode(errcode.Of(err), err, suggestion)
}

func handleErrorCode(code string, err error, suggestion string) error {
	if jsonOutput {
		outputError(code, err.Error(), nil, suggestion)
		return errReported
	}
	if suggestion != "" {
		return &suggestedError{err: err, suggestion: suggestion}
	}
	return err
}

// handleErrorMsg handles an error message appropriately based on output mode.
func handleErrorMsg(code, message, suggestion string) error {
	return handleErrorCode(code, errors.New(message), suggestion)
}

func hintFor(err error) string {
	var se *suggestedError
	if errors.As(err, &se) {
		return se.suggestion
	}
	return ""
}
