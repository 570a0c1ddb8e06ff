package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Errors are wrapped with
// fmt.Errorf("%w: ...") at the point of failure and classified with
// errors.Is (see Kind).
var (
	// ErrInvalidVersion means a target version is not a valid semantic version.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrNotFound means a manifest, member directory or descriptor is missing.
	ErrNotFound = errors.New("not found")

	// ErrParse means a manifest or descriptor is malformed.
	ErrParse = errors.New("parse error")

	// ErrIO means a filesystem read or write failed.
	ErrIO = errors.New("io error")

	// ErrCommand means an external command (git) exited non-zero.
	ErrCommand = errors.New("command failed")
)

// Kind returns the taxonomy name of err ("InvalidVersion", "NotFound",
// "ParseError", "IOError", "CommandError"), "Error" for anything else and
// "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidVersion):
		return "InvalidVersion"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrParse):
		return "ParseError"
	case errors.Is(err, ErrIO):
		return "IOError"
	case errors.Is(err, ErrCommand):
		return "CommandError"
	default:
		return "Error"
	}
}

// ExitCode defines the CLI exit codes. Scripts and CI systems rely on
// them to tell "everything succeeded" apart from partial failures and
// fatal pre-flight errors.
type ExitCode int

const (
	// ExitSuccess indicates every member succeeded.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitPartialFailure indicates the command ran but at least one
	// member failed.
	ExitPartialFailure ExitCode = 2

	// ExitInvalidVersion indicates the target version was rejected
	// before any member was touched.
	ExitInvalidVersion ExitCode = 3

	// ExitManifestError indicates the manifest is missing or malformed.
	ExitManifestError ExitCode = 4

	// ExitGitNotInstalled indicates the git binary is not on PATH.
	ExitGitNotInstalled ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error

	// Silent suppresses the error line on stderr. It is set when the
	// command already rendered a report describing the failures.
	Silent bool
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
