package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Exit codes. A run that finished but left rules failing exits 1; a run
// that never started exits 2.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // run finished with failures or aborted, rules file invalid
	ExitCommandError = 2 // bad settings, database or remote unavailable, unknown rule
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeSettings      = "E002"
	ErrCodeRulesFile     = "E003"
	ErrCodeDatabase      = "E004"
	ErrCodeRemote        = "E005"
	ErrCodeRuleNotFound  = "E006"
	ErrCodeRunAborted    = "E007"
	ErrCodeRunIncomplete = "E008"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not
// ExitErrors, such as cobra's flag errors, exit 1.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON document the CLI prints.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	// RunID correlates the output with the audit trail.
	RunID string `json:"run_id,omitempty"`
}

// CLIError is the error member of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
	// ErrWriter receives diagnostics so JSON on Writer stays parseable.
	// Writer is used when it is nil.
	ErrWriter io.Writer

	term *termenv.Output
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Success prints data. Text output uses data's default formatting.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Emit prints data as JSON, or calls text to render it.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// EmitRun is Emit for results that belong to a recorded run.
func (f *OutputFormatter) EmitRun(runID string, data any, text func(w io.Writer)) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data, RunID: runID})
	}
	text(f.Writer)
	return nil
}

// Error prints an error. Details are shown in text mode only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, f.styled(message, "1"))
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns where diagnostics go.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Mark returns a check for ok and a cross otherwise, colored when Writer
// is a terminal.
func (f *OutputFormatter) Mark(ok bool) string {
	if ok {
		return f.styled("✓", "2")
	}
	return f.styled("✗", "1")
}

// WarnMark flags a non-fatal problem.
func (f *OutputFormatter) WarnMark() string {
	return f.styled("!", "3")
}

// styled colors s with an ANSI color index. Writers that are not
// terminals get s unchanged.
func (f *OutputFormatter) styled(s, color string) string {
	if f.term == nil {
		f.term = termenv.NewOutput(f.Writer)
	}
	return f.term.String(s).Foreground(f.term.Color(color)).String()
}
