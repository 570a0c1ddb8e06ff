// Package model defines the domain types and value objects for the
// meta CLI.
//
// This package contains pure data structures with no external dependencies.
// The Workspace, Member and Descriptor types are transient representations
// reconstructed from the manifest and the members' package descriptors at
// the start of every command; nothing else is persisted.
//
// The package also defines the error taxonomy (ErrInvalidVersion, ErrNotFound,
// ErrParse, ErrIO, ErrCommand), per-member results collected by broadcast
// operations, exit codes (ExitCode) and a custom error type (CLIError) that
// carries exit codes for proper OS process exit handling.
package model
