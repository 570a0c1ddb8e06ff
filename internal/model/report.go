package model

import "strconv"

// MemberResult is the outcome of one operation on one member, or on one
// repository when several members share it (Members then lists them).
type MemberResult struct {
	// Path is the member path, or the repository directory for
	// repository-grouped git operations.
	Path string

	// Members lists the member paths covered by this result when Path
	// is a repository holding more than one member.
	Members []string

	// Name is the package name, when the descriptor could be read.
	Name string

	// OldVersion and NewVersion are the package's own version before and
	// after a bump.
	OldVersion string
	NewVersion string

	// VersionUpdated reports whether the package's own version changed.
	VersionUpdated bool

	// Dependencies lists the dependency entries rewritten by a bump.
	Dependencies []DependencyChange

	// Message is a short human-readable description of what happened.
	Message string

	// Err is the per-member failure, nil on success.
	Err error
}

// OK reports whether the member succeeded.
func (r MemberResult) OK() bool {
	return r.Err == nil
}

// Changed reports whether a bump modified the member's descriptor.
func (r MemberResult) Changed() bool {
	return r.VersionUpdated || len(r.Dependencies) > 0
}

// Report aggregates the per-member results of one command.
type Report struct {
	// Command is the CLI command that produced the report (e.g. "bump").
	Command string

	// DryRun is set when no file or repository was modified.
	DryRun bool

	// Results holds one entry per member (or repository), in order.
	Results []MemberResult
}

// Failed returns the number of failed results.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Succeeded returns the number of successful results.
func (r *Report) Succeeded() int {
	return len(r.Results) - r.Failed()
}

// ExitCode returns ExitSuccess when every result succeeded and
// ExitPartialFailure otherwise.
func (r *Report) ExitCode() ExitCode {
	if r.Failed() > 0 {
		return ExitPartialFailure
	}
	return ExitSuccess
}

// Err returns a CLIError carrying ExitPartialFailure when at least one
// result failed, nil otherwise. Commands return it after rendering the
// report so the process exit status reflects the outcome.
func (r *Report) Err() error {
	failed := r.Failed()
	if failed == 0 {
		return nil
	}
	return &CLIError{
		Code:    ExitPartialFailure,
		Message: pluralize(failed, "member") + " failed",
		Silent:  true,
	}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
