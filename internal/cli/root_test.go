package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/meta/internal/model"
)

const (
	coreCargo = `[package]
name = "core"
version = "0.1.0"
edition = "2021"

[dependencies]
serde = "1.0"
`

	appCargo = `[package]
name = "app"
version = "0.1.0"

[dependencies]
core = "0.1.0" # keep in sync
serde = "1.0"
`

	webPackageJSON = `{
  "name": "web",
  "version": "0.1.0",
  "dependencies": {
    "left-pad": "^1.3.0"
  }
}
`
)

// executeCommand runs the CLI with args and returns the exit code and the
// captured stdout and stderr.
func executeCommand(t *testing.T, args ...string) (model.ExitCode, string, string) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	rootCmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	code := run(context.Background(), rootCmd)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// setupWorkspace writes a manifest listing members and one descriptor per
// entry of files (member-relative path to content). It returns the root.
func setupWorkspace(t *testing.T, members string, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Meta.toml"), "[workspace]\nmembers = "+members+"\n")
	for path, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(path)), content)
	}
	return root
}

func requireGitBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
}

func TestRootCommand_Version(t *testing.T) {
	code, stdout, _ := executeCommand(t, "--version")
	assert.Equal(t, model.ExitSuccess, code)
	assert.Contains(t, stdout, "meta version dev")
}

// TestRootCommand_Subcommands verifies every command is registered.
func TestRootCommand_Subcommands(t *testing.T) {
	rootCmd := NewRootCommand()
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{
		"init", "bump", "list", "commit", "branch", "checkout", "merge",
		"push", "pull", "fetch", "tag", "push-tag", "remove-tag", "remove-branch",
	} {
		assert.Contains(t, names, want)
	}
}

func TestMissingManifest(t *testing.T) {
	root := t.TempDir()

	code, stdout, stderr := executeCommand(t, "--root", root, "list")
	assert.Equal(t, model.ExitManifestError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: manifest not found")
}

// TestMissingManifest_JSON verifies that fatal errors are printed as a JSON
// object on stderr with --json.
func TestMissingManifest_JSON(t *testing.T) {
	root := t.TempDir()

	code, _, stderr := executeCommand(t, "--root", root, "--json", "bump", "0.2.0")
	assert.Equal(t, model.ExitManifestError, code)

	var got struct {
		Error struct {
			Message string `json:"message"`
			Kind    string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stderr), &got), stderr)
	assert.Equal(t, "manifest not found", got.Error.Message)
	assert.Equal(t, "NotFound", got.Error.Kind)
}

func TestMalformedManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Meta.toml"), "[workspace\nmembers = [\n")

	code, _, stderr := executeCommand(t, "--root", root, "list")
	assert.Equal(t, model.ExitManifestError, code)
	assert.Contains(t, stderr, "Error:")
}

func TestOutputFlagsAreExclusive(t *testing.T) {
	root := setupWorkspace(t, `["core"]`, map[string]string{"core/Cargo.toml": coreCargo})

	code, _, stderr := executeCommand(t, "--root", root, "--json", "--yaml", "list")
	assert.Equal(t, model.ExitGeneralError, code)
	assert.Contains(t, stderr, "json")
}

func TestInvalidJobs(t *testing.T) {
	root := setupWorkspace(t, `["core"]`, map[string]string{"core/Cargo.toml": coreCargo})

	code, _, stderr := executeCommand(t, "--root", root, "-j", "0", "list")
	assert.Equal(t, model.ExitGeneralError, code)
	assert.Contains(t, stderr, "jobs must be at least 1")
}

// TestSettingsFromManifest verifies that [settings] in the manifest feed
// the configuration.
func TestSettingsFromManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Meta.toml"),
		"[workspace]\nmembers = [\"core\"]\n\n[settings]\ntag_prefix = \"release-\"\njobs = 3\n")
	writeFile(t, filepath.Join(root, "core", "Cargo.toml"), coreCargo)

	code, _, _ := executeCommand(t, "--root", root, "list")
	require.Equal(t, model.ExitSuccess, code)
	assert.Equal(t, "release-", cfg.TagPrefix)
	assert.Equal(t, 3, cfg.Jobs)
}
