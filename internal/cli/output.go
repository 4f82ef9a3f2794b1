package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0 // run completed, everything green
	ExitFailure      = 1 // run completed but an objective is failing
	ExitCommandError = 2 // operational error (bad paths, dead collaborators, lock conflict)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to
// ExitFailure for plain errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter routes command output as text or indented JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// JSONOutput reports whether the formatter emits JSON.
func (f *OutputFormatter) JSONOutput() bool {
	return f.Format == "json"
}

// EmitJSON writes v as indented JSON.
func (f *OutputFormatter) EmitJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EmitText writes a formatted text line.
func (f *OutputFormatter) EmitText(format string, args ...any) {
	fmt.Fprintf(f.Writer, format+"\n", args...)
}
