package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/meta/internal/model"
)

// Fallback identity used when a repository has no user.name/user.email.
const (
	fallbackName  = "meta"
	fallbackEmail = "meta@localhost"
)

// Manager provides git operations by invoking the git CLI.
type Manager struct {
	binary string
}

// NewManager creates a Manager that runs the git binary found on PATH.
func NewManager() *Manager {
	return &Manager{binary: "git"}
}

// IsInstalled reports whether the git binary is available.
func (m *Manager) IsInstalled() bool {
	_, err := exec.LookPath(m.binary)
	return err == nil
}

// RepoRoot returns the top-level directory of the repository containing
// dir. It returns an error wrapping model.ErrNotFound when dir is not
// inside a git repository.
func (m *Manager) RepoRoot(ctx context.Context, dir string) (string, error) {
	out, err := m.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s is not inside a git repository", model.ErrNotFound, dir)
	}
	return filepath.FromSlash(strings.TrimSpace(out)), nil
}

// CurrentBranch returns the short name of the checked-out branch, or
// "HEAD" when HEAD is detached.
func (m *Manager) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := m.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchExists checks whether a local branch exists.
func (m *Manager) BranchExists(ctx context.Context, dir, branch string) bool {
	_, err := m.run(ctx, dir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// SwitchBranch checks out name, creating it from HEAD when it exists
// neither locally nor as a remote-tracking branch. It reports whether the
// branch was created. A failed checkout of an existing local branch is
// returned as is.
func (m *Manager) SwitchBranch(ctx context.Context, dir, name string) (bool, error) {
	if m.BranchExists(ctx, dir, name) {
		_, err := m.run(ctx, dir, "checkout", name)
		return false, err
	}
	if _, err := m.run(ctx, dir, "checkout", name); err == nil {
		return false, nil
	}
	if _, err := m.run(ctx, dir, "checkout", "-b", name); err != nil {
		return false, err
	}
	return true, nil
}

// Checkout checks out an existing ref.
func (m *Manager) Checkout(ctx context.Context, dir, ref string) error {
	_, err := m.run(ctx, dir, "checkout", ref)
	return err
}

// Merge merges branch into the current branch.
func (m *Manager) Merge(ctx context.Context, dir, branch string) error {
	_, err := m.run(ctx, dir, "merge", branch)
	return err
}

// Fetch fetches from remote.
func (m *Manager) Fetch(ctx context.Context, dir, remote string) error {
	_, err := m.run(ctx, dir, "fetch", remote)
	return err
}

// Pull pulls the current branch from remote.
func (m *Manager) Pull(ctx context.Context, dir, remote string) error {
	branch, err := m.attachedBranch(ctx, dir)
	if err != nil {
		return err
	}
	_, err = m.run(ctx, dir, "pull", remote, branch)
	return err
}

// Push pushes the current branch to remote and sets it as upstream.
// It returns the pushed branch.
func (m *Manager) Push(ctx context.Context, dir, remote string) (string, error) {
	branch, err := m.attachedBranch(ctx, dir)
	if err != nil {
		return "", err
	}
	_, err = m.run(ctx, dir, "push", "-u", remote, branch)
	return branch, err
}

// Commit stages files and commits them with message. Only the given files
// are committed, even if other changes are staged. When none of the files
// has changes it returns false and no error.
func (m *Manager) Commit(ctx context.Context, dir, message string, files []string) (bool, error) {
	if len(files) == 0 {
		return false, nil
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, relTo(dir, f))
	}

	if _, err := m.run(ctx, dir, append([]string{"add", "--"}, paths...)...); err != nil {
		return false, err
	}

	// diff --cached --quiet exits 1 when the paths have staged changes.
	_, err := m.run(ctx, dir, append([]string{"diff", "--cached", "--quiet", "--"}, paths...)...)
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		return false, err
	}

	args := append(m.identityOverrides(ctx, dir), "commit", "-m", message, "--")
	if _, err := m.run(ctx, dir, append(args, paths...)...); err != nil {
		return false, err
	}
	return true, nil
}

// Tag creates a lightweight tag at HEAD.
func (m *Manager) Tag(ctx context.Context, dir, name string) error {
	_, err := m.run(ctx, dir, "tag", name)
	return err
}

// PushTag pushes a tag to remote.
func (m *Manager) PushTag(ctx context.Context, dir, remote, name string) error {
	_, err := m.run(ctx, dir, "push", remote, "refs/tags/"+name)
	return err
}

// RemoveTag deletes a tag. When remote is not empty the tag is also
// deleted there, and a failure to delete it locally (for instance because
// it only exists on the remote) is ignored.
func (m *Manager) RemoveTag(ctx context.Context, dir, name, remote string) error {
	_, err := m.run(ctx, dir, "tag", "-d", name)
	if remote == "" {
		return err
	}
	_, err = m.run(ctx, dir, "push", remote, "--delete", "refs/tags/"+name)
	return err
}

// RemoveBranch force-deletes a local branch. When remote is not empty the
// branch is also deleted there, and a local failure is ignored.
func (m *Manager) RemoveBranch(ctx context.Context, dir, name, remote string) error {
	_, err := m.run(ctx, dir, "branch", "-D", name)
	if remote == "" {
		return err
	}
	_, err = m.run(ctx, dir, "push", remote, "--delete", "refs/heads/"+name)
	return err
}

func (m *Manager) attachedBranch(ctx context.Context, dir string) (string, error) {
	branch, err := m.CurrentBranch(ctx, dir)
	if err != nil {
		return "", err
	}
	if branch == "HEAD" {
		return "", fmt.Errorf("%w: %s: HEAD is detached", model.ErrCommand, dir)
	}
	return branch, nil
}

// identityOverrides returns "-c" options supplying a fallback
// user.name/user.email for a single invocation when the repository has
// none configured. The repository configuration is never written.
func (m *Manager) identityOverrides(ctx context.Context, dir string) []string {
	var args []string
	if _, err := m.run(ctx, dir, "config", "user.name"); err != nil {
		args = append(args, "-c", "user.name="+fallbackName)
	}
	if _, err := m.run(ctx, dir, "config", "user.email"); err != nil {
		args = append(args, "-c", "user.email="+fallbackEmail)
	}
	return args
}

// run executes git with the given arguments in dir and returns stdout.
//
// dir is passed with -C so the process working directory never changes,
// which keeps concurrent invocations independent. On failure the error
// wraps model.ErrCommand and the *exec.ExitError, and carries stderr.
func (m *Manager) run(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 -- the binary is fixed and arguments are passed without a shell
	cmd := exec.CommandContext(ctx, m.binary, fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", &commandError{args: args, stderr: msg, err: err}
	}
	return stdout.String(), nil
}

// commandError is a failed git invocation.
type commandError struct {
	args   []string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%v: git %s: %s", model.ErrCommand, strings.Join(e.args, " "), e.stderr)
}

// Unwrap exposes both the taxonomy sentinel and the underlying exec error.
func (e *commandError) Unwrap() []error {
	return []error{model.ErrCommand, e.err}
}

// relTo returns file relative to dir, resolving symlinks on both sides so
// that a temp directory reached through a symlink still matches the
// repository root reported by git.
func relTo(dir, file string) string {
	if !filepath.IsAbs(file) {
		return filepath.ToSlash(file)
	}
	base, target := dir, file
	if d, err := filepath.EvalSymlinks(dir); err == nil {
		base = d
	}
	if f, err := filepath.EvalSymlinks(file); err == nil {
		target = f
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}
