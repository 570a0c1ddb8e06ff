package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/meta/internal/manifest"
	"github.com/mmr-tortoise/meta/internal/model"
)

func TestInit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "core", "Cargo.toml"), coreCargo)
	writeFile(t, filepath.Join(root, "web", "package.json"), webPackageJSON)
	writeFile(t, filepath.Join(root, "docs", "README.md"), "# docs\n")

	code, stdout, stderr := executeCommand(t, "--root", root, "init")
	require.Equal(t, model.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "with 2 members")

	ws, err := manifest.Load(filepath.Join(root, "Meta.toml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "web"}, ws.Paths())

	// A second init refuses to overwrite the manifest.
	code, _, stderr = executeCommand(t, "--root", root, "init")
	assert.Equal(t, model.ExitGeneralError, code)
	assert.Contains(t, stderr, "already exists")

	writeFile(t, filepath.Join(root, "app", "Cargo.toml"), appCargo)
	code, _, stderr = executeCommand(t, "--root", root, "init", "--force")
	require.Equal(t, model.ExitSuccess, code, stderr)

	ws, err = manifest.Load(filepath.Join(root, "Meta.toml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "core", "web"}, ws.Paths())
}

// TestInit_WorkspaceThatIsAlsoPackage verifies that a Cargo workspace root
// declaring its own [package] is a member next to the crates it lists.
func TestInit_WorkspaceThatIsAlsoPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "server", "Cargo.toml"), `[package]
name = "server"
version = "0.1.0"

[workspace]
members = ["crates/*"]
`)
	writeFile(t, filepath.Join(root, "server", "crates", "auth", "Cargo.toml"), coreCargo)

	code, stdout, stderr := executeCommand(t, "--root", root, "init")
	require.Equal(t, model.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "with 2 members")

	ws, err := manifest.Load(filepath.Join(root, "Meta.toml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"server", "server/crates/auth"}, ws.Paths())
}

// TestInit_NoPackages verifies that an empty scan writes nothing.
func TestInit_NoPackages(t *testing.T) {
	root := t.TempDir()

	code, _, stderr := executeCommand(t, "--root", root, "init")
	assert.Equal(t, model.ExitSuccess, code)
	assert.Contains(t, stderr, "no packages found")
	assert.False(t, manifest.Exists(filepath.Join(root, "Meta.toml")))
}

func TestBump(t *testing.T) {
	root := setupWorkspace(t, `["core", "app"]`, map[string]string{
		"core/Cargo.toml": coreCargo,
		"app/Cargo.toml":  appCargo,
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "bump", "0.2.0")
	require.Equal(t, model.ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "✓ core 0.1.0 → 0.2.0")
	assert.Contains(t, stdout, "✓ app 0.1.0 → 0.2.0")
	assert.Contains(t, stdout, "dependencies: core 0.1.0 → 0.2.0")
	assert.Contains(t, stdout, "2 succeeded")

	assert.Contains(t, readFile(t, filepath.Join(root, "core", "Cargo.toml")), `version = "0.2.0"`)
	app := readFile(t, filepath.Join(root, "app", "Cargo.toml"))
	assert.Contains(t, app, `core = "0.2.0" # keep in sync`)
	assert.Contains(t, app, `serde = "1.0"`)

	// Bumping again to the same version changes nothing.
	code, stdout, _ = executeCommand(t, "--root", root, "bump", "v0.2.0")
	require.Equal(t, model.ExitSuccess, code)
	assert.Contains(t, stdout, "✓ core 0.2.0 unchanged")
}

func TestBump_Keyword(t *testing.T) {
	root := setupWorkspace(t, `["core", "app"]`, map[string]string{
		"core/Cargo.toml": coreCargo,
		"app/Cargo.toml":  appCargo,
	})

	code, _, stderr := executeCommand(t, "--root", root, "bump", "minor")
	require.Equal(t, model.ExitSuccess, code, stderr)
	assert.Contains(t, readFile(t, filepath.Join(root, "app", "Cargo.toml")), `core = "0.2.0"`)
}

// TestBump_InvalidVersion verifies that an invalid target exits with the
// invalid-version code and leaves every file untouched.
func TestBump_InvalidVersion(t *testing.T) {
	root := setupWorkspace(t, `["core", "app"]`, map[string]string{
		"core/Cargo.toml": coreCargo,
		"app/Cargo.toml":  appCargo,
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "bump", "not-a-version")
	assert.Equal(t, model.ExitInvalidVersion, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `Error: cannot bump to "not-a-version"`)

	assert.Equal(t, coreCargo, readFile(t, filepath.Join(root, "core", "Cargo.toml")))
	assert.Equal(t, appCargo, readFile(t, filepath.Join(root, "app", "Cargo.toml")))
}

// TestBump_PartialFailure verifies that an unreadable member is reported
// while the others are still bumped, and that the exit code reflects it.
func TestBump_PartialFailure(t *testing.T) {
	root := setupWorkspace(t, `["core", "broken"]`, map[string]string{
		"core/Cargo.toml":   coreCargo,
		"broken/Cargo.toml": "[package\nname = ",
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "bump", "0.2.0")
	assert.Equal(t, model.ExitPartialFailure, code)
	assert.Contains(t, stdout, "✓ core 0.1.0 → 0.2.0")
	assert.Contains(t, stdout, "✗ broken")
	assert.Contains(t, stdout, "1 succeeded, 1 failed")
	assert.Empty(t, stderr, "the report already describes the failure")

	assert.Contains(t, readFile(t, filepath.Join(root, "core", "Cargo.toml")), `version = "0.2.0"`)
}

func TestBump_DryRunJSON(t *testing.T) {
	root := setupWorkspace(t, `["core", "app"]`, map[string]string{
		"core/Cargo.toml": coreCargo,
		"app/Cargo.toml":  appCargo,
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "--json", "bump", "1.0.0", "--dry-run")
	require.Equal(t, model.ExitSuccess, code, stderr)

	var got struct {
		Command string `json:"command"`
		DryRun  bool   `json:"dryRun"`
		Results []struct {
			Path         string                   `json:"path"`
			NewVersion   string                   `json:"newVersion"`
			Dependencies []model.DependencyChange `json:"dependencies"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got), stdout)
	assert.Equal(t, "bump", got.Command)
	assert.True(t, got.DryRun)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "1.0.0", got.Results[0].NewVersion)
	require.Len(t, got.Results[1].Dependencies, 1)
	assert.Equal(t, "1.0.0", got.Results[1].Dependencies[0].NewSpec)

	assert.Equal(t, coreCargo, readFile(t, filepath.Join(root, "core", "Cargo.toml")))
	assert.Equal(t, appCargo, readFile(t, filepath.Join(root, "app", "Cargo.toml")))
}

func TestList(t *testing.T) {
	root := setupWorkspace(t, `["core", "web", "gone"]`, map[string]string{
		"core/Cargo.toml":  coreCargo,
		"web/package.json": webPackageJSON,
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "list")
	require.Equal(t, model.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "PATH")
	assert.Contains(t, stdout, "core  core  0.1.0      cargo")
	assert.Contains(t, stdout, "web   web   0.1.0      npm")
	assert.Contains(t, stdout, "gone  not found")
}

// TestList_MemberDependencies verifies that references between members
// are listed and references to outside packages are not.
func TestList_MemberDependencies(t *testing.T) {
	root := setupWorkspace(t, `["core", "app"]`, map[string]string{
		"core/Cargo.toml": coreCargo,
		"app/Cargo.toml":  appCargo,
	})

	code, stdout, stderr := executeCommand(t, "--root", root, "list")
	require.Equal(t, model.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "app   app   0.1.0      cargo\n      → core 0.1.0 (dependencies, version)\n")
	assert.NotContains(t, stdout, "serde")

	code, stdout, stderr = executeCommand(t, "--root", root, "--json", "list")
	require.Equal(t, model.ExitSuccess, code, stderr)

	var got struct {
		Members []struct {
			Path      string             `json:"path"`
			DependsOn []model.Dependency `json:"dependsOn"`
		} `json:"members"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Members, 2)
	assert.Empty(t, got.Members[0].DependsOn)
	assert.Equal(t, []model.Dependency{
		{Table: "dependencies", Key: "core", Name: "core", Spec: "0.1.0", Kind: model.KindVersion},
	}, got.Members[1].DependsOn)
}

// TestList_DuplicateMembers verifies that duplicates are warned about but
// still listed.
func TestList_DuplicateMembers(t *testing.T) {
	root := setupWorkspace(t, `["core", "core"]`, map[string]string{"core/Cargo.toml": coreCargo})

	code, stdout, stderr := executeCommand(t, "--root", root, "--yaml", "list")
	require.Equal(t, model.ExitSuccess, code)
	assert.Contains(t, stderr, "duplicate members")
	assert.Contains(t, stdout, "members:")
	assert.Contains(t, stdout, "path: core")
}
