package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/meta/internal/model"
)

// setupTestRepo creates a temporary Git repository with a single commit and
// a repo-local identity so commits work without global configuration.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	dir := t.TempDir()
	runTestGit(t, dir, "init")
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	writeTestFile(t, filepath.Join(dir, "README.md"), "# Test Repo\n")
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// setupRemote attaches a bare repository as "origin" to repo and returns
// its path.
func setupRemote(t *testing.T, repo string) string {
	t.Helper()

	remote := filepath.Join(t.TempDir(), "origin.git")
	runTestGit(t, t.TempDir(), "init", "--bare", remote)
	runTestGit(t, repo, "remote", "add", "origin", remote)
	return remote
}

// runTestGit runs a git command in dir and fails the test on a non-zero exit.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// refExists reports whether ref resolves in the repository at dir.
func refExists(dir, ref string) bool {
	return exec.Command("git", "-C", dir, "rev-parse", "--verify", "--quiet", ref).Run() == nil
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsInstalled(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	assert.True(t, NewManager().IsInstalled())
	assert.False(t, (&Manager{binary: "definitely-not-git-binary"}).IsInstalled())
}

func TestRepoRoot(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	sub := filepath.Join(repo, "crates", "core")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	root, err := m.RepoRoot(ctx, sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(repo)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestRepoRootOutsideRepository verifies that a directory outside any
// repository is reported as not found.
func TestRepoRootOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

	_, err := NewManager().RepoRoot(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// TestSwitchBranch verifies that a missing branch is created and an
// existing one is checked out.
func TestSwitchBranch(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	base, err := m.CurrentBranch(ctx, repo)
	require.NoError(t, err)

	created, err := m.SwitchBranch(ctx, repo, "release")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, m.BranchExists(ctx, repo, "release"))

	branch, err := m.CurrentBranch(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "release", branch)

	created, err = m.SwitchBranch(ctx, repo, base)
	require.NoError(t, err)
	assert.False(t, created)

	branch, err = m.CurrentBranch(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, base, branch)
}

// TestSwitchBranch_ExistingBranchCheckoutFails verifies that a failed
// checkout of an existing branch is reported instead of retried as a
// branch creation.
func TestSwitchBranch_ExistingBranchCheckoutFails(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	runTestGit(t, repo, "checkout", "-b", "release")
	writeTestFile(t, filepath.Join(repo, "README.md"), "# Release\n")
	runTestGit(t, repo, "commit", "-am", "release readme")
	runTestGit(t, repo, "checkout", "-")

	// An uncommitted change to the same file blocks the checkout.
	writeTestFile(t, filepath.Join(repo, "README.md"), "# Local edit\n")

	created, err := m.SwitchBranch(ctx, repo, "release")
	require.Error(t, err)
	assert.False(t, created)
	assert.ErrorIs(t, err, model.ErrCommand)
	assert.Contains(t, err.Error(), "git checkout release:")
	assert.NotContains(t, err.Error(), "checkout -b")
}

func TestCheckoutUnknownRef(t *testing.T) {
	repo := setupTestRepo(t)

	err := NewManager().Checkout(context.Background(), repo, "no-such-branch")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCommand)
	assert.Contains(t, err.Error(), "git checkout no-such-branch")
}

func TestMerge(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	base, err := m.CurrentBranch(ctx, repo)
	require.NoError(t, err)

	_, err = m.SwitchBranch(ctx, repo, "feature")
	require.NoError(t, err)
	writeTestFile(t, filepath.Join(repo, "feature.txt"), "feature\n")
	runTestGit(t, repo, "add", "feature.txt")
	runTestGit(t, repo, "commit", "-m", "add feature")

	require.NoError(t, m.Checkout(ctx, repo, base))
	require.NoError(t, m.Merge(ctx, repo, "feature"))

	_, err = os.Stat(filepath.Join(repo, "feature.txt"))
	assert.NoError(t, err, "merged file should exist on the base branch")
}

// TestCommit verifies that only the given files are committed.
func TestCommit(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	manifest := filepath.Join(repo, "crates", "core", "Cargo.toml")
	writeTestFile(t, manifest, "[package]\nname = \"core\"\nversion = \"0.2.0\"\n")
	writeTestFile(t, filepath.Join(repo, "notes.txt"), "unrelated\n")

	committed, err := m.Commit(ctx, repo, "Bump version to 0.2.0", []string{manifest})
	require.NoError(t, err)
	assert.True(t, committed)

	subject := strings.TrimSpace(runTestGit(t, repo, "log", "-1", "--format=%s"))
	assert.Equal(t, "Bump version to 0.2.0", subject)

	files := runTestGit(t, repo, "show", "--name-only", "--format=", "HEAD")
	assert.Contains(t, files, "crates/core/Cargo.toml")
	assert.NotContains(t, files, "notes.txt")

	status := runTestGit(t, repo, "status", "--porcelain")
	assert.Contains(t, status, "?? notes.txt")
}

// TestCommitWithoutIdentity verifies that a repository without
// user.name/user.email gets a fallback author for the commit only.
func TestCommitWithoutIdentity(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("GIT_CONFIG_GLOBAL", filepath.Join(home, ".gitconfig"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	repo := t.TempDir()
	runTestGit(t, repo, "init")
	runTestGit(t, repo, "-c", "user.name=Setup", "-c", "user.email=setup@example.com",
		"commit", "--allow-empty", "-m", "initial commit")
	writeTestFile(t, filepath.Join(repo, "Cargo.toml"), "[package]\nname = \"core\"\nversion = \"0.1.0\"\n")

	m := NewManager()
	ctx := context.Background()
	committed, err := m.Commit(ctx, repo, "Bump version to 0.1.0", []string{filepath.Join(repo, "Cargo.toml")})
	require.NoError(t, err)
	assert.True(t, committed)

	author := strings.TrimSpace(runTestGit(t, repo, "log", "-1", "--format=%an <%ae>"))
	assert.Equal(t, "meta <meta@localhost>", author)

	// The fallback is not persisted in the repository configuration.
	err = exec.Command("git", "-C", repo, "config", "--local", "user.name").Run()
	assert.Error(t, err)
	err = exec.Command("git", "-C", repo, "config", "--local", "user.email").Run()
	assert.Error(t, err)
}

// TestCommitNothingToCommit verifies that unchanged files are a no-op
// rather than an error.
func TestCommitNothingToCommit(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	head := runTestGit(t, repo, "rev-parse", "HEAD")

	committed, err := m.Commit(ctx, repo, "Bump version", []string{filepath.Join(repo, "README.md")})
	require.NoError(t, err)
	assert.False(t, committed)

	committed, err = m.Commit(ctx, repo, "Bump version", nil)
	require.NoError(t, err)
	assert.False(t, committed)

	assert.Equal(t, head, runTestGit(t, repo, "rev-parse", "HEAD"))
}

func TestTagAndRemoveTag(t *testing.T) {
	repo := setupTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.Tag(ctx, repo, "v0.2.0"))
	assert.True(t, refExists(repo, "refs/tags/v0.2.0"))

	err := m.Tag(ctx, repo, "v0.2.0")
	assert.ErrorIs(t, err, model.ErrCommand, "tagging twice should fail")

	require.NoError(t, m.RemoveTag(ctx, repo, "v0.2.0", ""))
	assert.False(t, refExists(repo, "refs/tags/v0.2.0"))

	err = m.RemoveTag(ctx, repo, "v0.2.0", "")
	assert.ErrorIs(t, err, model.ErrCommand, "removing a missing local tag should fail")
}

func TestPushAndPushTag(t *testing.T) {
	repo := setupTestRepo(t)
	remote := setupRemote(t, repo)
	m := NewManager()
	ctx := context.Background()

	branch, err := m.Push(ctx, repo, "origin")
	require.NoError(t, err)
	assert.True(t, refExists(remote, "refs/heads/"+branch))

	upstream := strings.TrimSpace(runTestGit(t, repo, "rev-parse", "--abbrev-ref", "@{upstream}"))
	assert.Equal(t, "origin/"+branch, upstream)

	require.NoError(t, m.Tag(ctx, repo, "v0.2.0"))
	require.NoError(t, m.PushTag(ctx, repo, "origin", "v0.2.0"))
	assert.True(t, refExists(remote, "refs/tags/v0.2.0"))
}

func TestFetchAndPull(t *testing.T) {
	repo := setupTestRepo(t)
	remote := setupRemote(t, repo)
	m := NewManager()
	ctx := context.Background()

	branch, err := m.Push(ctx, repo, "origin")
	require.NoError(t, err)

	// A second clone pushes a new commit that repo then pulls.
	other := filepath.Join(t.TempDir(), "other")
	runTestGit(t, t.TempDir(), "clone", remote, other)
	runTestGit(t, other, "config", "user.email", "test@example.com")
	runTestGit(t, other, "config", "user.name", "Test User")
	writeTestFile(t, filepath.Join(other, "CHANGELOG.md"), "# Changes\n")
	runTestGit(t, other, "add", "CHANGELOG.md")
	runTestGit(t, other, "commit", "-m", "add changelog")
	runTestGit(t, other, "push", "origin", branch)

	require.NoError(t, m.Fetch(ctx, repo, "origin"))
	_, err = os.Stat(filepath.Join(repo, "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err), "fetch should not touch the working tree")

	require.NoError(t, m.Pull(ctx, repo, "origin"))
	_, err = os.Stat(filepath.Join(repo, "CHANGELOG.md"))
	assert.NoError(t, err)
}

func TestPullDetachedHead(t *testing.T) {
	repo := setupTestRepo(t)
	runTestGit(t, repo, "checkout", "--detach")

	err := NewManager().Pull(context.Background(), repo, "origin")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCommand)
	assert.Contains(t, err.Error(), "detached")
}

func TestRemoveBranch(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		repo := setupTestRepo(t)
		m := NewManager()
		ctx := context.Background()

		runTestGit(t, repo, "branch", "release")
		require.NoError(t, m.RemoveBranch(ctx, repo, "release", ""))
		assert.False(t, m.BranchExists(ctx, repo, "release"))

		err := m.RemoveBranch(ctx, repo, "release", "")
		assert.ErrorIs(t, err, model.ErrCommand)
	})

	t.Run("with remote", func(t *testing.T) {
		repo := setupTestRepo(t)
		remote := setupRemote(t, repo)
		m := NewManager()
		ctx := context.Background()

		runTestGit(t, repo, "branch", "release")
		runTestGit(t, repo, "push", "origin", "release")
		require.True(t, refExists(remote, "refs/heads/release"))

		require.NoError(t, m.RemoveBranch(ctx, repo, "release", "origin"))
		assert.False(t, m.BranchExists(ctx, repo, "release"))
		assert.False(t, refExists(remote, "refs/heads/release"))
	})

	// A branch that only exists on the remote is still deleted there.
	t.Run("remote only", func(t *testing.T) {
		repo := setupTestRepo(t)
		remote := setupRemote(t, repo)
		m := NewManager()
		ctx := context.Background()

		runTestGit(t, repo, "branch", "hotfix")
		runTestGit(t, repo, "push", "origin", "hotfix")
		runTestGit(t, repo, "branch", "-D", "hotfix")

		require.NoError(t, m.RemoveBranch(ctx, repo, "hotfix", "origin"))
		assert.False(t, refExists(remote, "refs/heads/hotfix"))
	})
}

func TestRemoveTagWithRemote(t *testing.T) {
	repo := setupTestRepo(t)
	remote := setupRemote(t, repo)
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.Tag(ctx, repo, "v1.0.0"))
	require.NoError(t, m.PushTag(ctx, repo, "origin", "v1.0.0"))

	require.NoError(t, m.RemoveTag(ctx, repo, "v1.0.0", "origin"))
	assert.False(t, refExists(repo, "refs/tags/v1.0.0"))
	assert.False(t, refExists(remote, "refs/tags/v1.0.0"))
}

// TestCanceledContext verifies that a canceled context stops git commands.
func TestCanceledContext(t *testing.T) {
	repo := setupTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewManager().CurrentBranch(ctx, repo)
	assert.Error(t, err)
}

func TestRelTo(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "crates", "core", "Cargo.toml")
	writeTestFile(t, file, "")

	assert.Equal(t, "crates/core/Cargo.toml", relTo(dir, file))
	assert.Equal(t, "package.json", relTo(dir, "package.json"))
}
