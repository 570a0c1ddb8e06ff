// Package git runs the git operations that meta forwards to every
// repository of a workspace.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library so that
//     credentials, hooks and user configuration behave exactly as they do
//     on the command line.
//   - Every command runs as `git -C <dir> ...` bound to a context, so an
//     interrupt stops the running git process.
//   - Failures wrap model.ErrCommand and carry git's stderr.
package git
