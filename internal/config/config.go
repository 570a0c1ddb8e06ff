// Package config resolves the settings every meta command runs with.
//
// Values are layered with a per-command viper instance, highest first:
// command-line flags, META_* environment variables, the [settings] table of
// the manifest, and built-in defaults. The workspace root and manifest path
// are never read from the manifest itself.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mmr-tortoise/meta/internal/model"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "META"

// Keys of the configuration values. Flags use the same names with dashes.
const (
	KeyRoot      = "root"
	KeyManifest  = "manifest"
	KeyRemote    = "remote"
	KeyTagPrefix = "tag_prefix"
	KeyJobs      = "jobs"
	KeyVerbose   = "verbose"
)

// settingsKeys are the keys the manifest's [settings] table may set.
var settingsKeys = map[string]bool{
	KeyRemote:    true,
	KeyTagPrefix: true,
	KeyJobs:      true,
}

// Config holds the resolved settings of one command invocation.
type Config struct {
	// Root is the workspace root directory.
	Root string `mapstructure:"root"`

	// Manifest is the manifest path, relative to Root unless absolute.
	Manifest string `mapstructure:"manifest"`

	// Remote is the git remote used by push, pull, fetch and the
	// remote variants of remove-branch and remove-tag.
	Remote string `mapstructure:"remote"`

	// TagPrefix is prepended to versions to form tag names.
	TagPrefix string `mapstructure:"tag_prefix"`

	// Jobs bounds how many members are processed at once.
	Jobs int `mapstructure:"jobs"`

	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Root:      ".",
		Manifest:  "Meta.toml",
		Remote:    "origin",
		TagPrefix: "v",
		Jobs:      1,
	}
}

// ManifestPath returns the manifest location resolved against Root.
func (c *Config) ManifestPath() string {
	if filepath.IsAbs(c.Manifest) {
		return c.Manifest
	}
	return filepath.Join(c.Root, c.Manifest)
}

// AddFlags registers the flags Load binds. Flag names are the keys with
// underscores replaced by dashes, except the remote, which is
// --remote-name because remove-branch and remove-tag own --remote.
func AddFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(flagName(KeyRoot), d.Root, "workspace root directory")
	flags.String(flagName(KeyManifest), d.Manifest, "manifest file, relative to --root")
	flags.String(flagName(KeyRemote), d.Remote, "git remote used by push, pull, fetch and remote deletions")
	flags.String(flagName(KeyTagPrefix), d.TagPrefix, "prefix prepended to versions to form tag names")
	flags.IntP(flagName(KeyJobs), "j", d.Jobs, "number of members processed in parallel")
	flags.BoolP(flagName(KeyVerbose), "v", false, "enable verbose output")
}

func flagName(key string) string {
	if key == KeyRemote {
		return "remote-name"
	}
	return strings.ReplaceAll(key, "_", "-")
}

// Load resolves the configuration. flags may be nil; flags that were not
// registered with AddFlags are ignored.
//
// A manifest that exists but cannot be decoded yields an error wrapping
// model.ErrParse. A missing manifest is not an error here.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyRoot, d.Root)
	v.SetDefault(KeyManifest, d.Manifest)
	v.SetDefault(KeyRemote, d.Remote)
	v.SetDefault(KeyTagPrefix, d.TagPrefix)
	v.SetDefault(KeyJobs, d.Jobs)
	v.SetDefault(KeyVerbose, d.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range []string{KeyRoot, KeyManifest, KeyRemote, KeyTagPrefix, KeyJobs, KeyVerbose} {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", f.Name, err)
				}
			}
		}
	}

	manifestPath := (&Config{Root: v.GetString(KeyRoot), Manifest: v.GetString(KeyManifest)}).ManifestPath()
	settings, err := readSettings(manifestPath)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("%w: merging [settings]: %v", model.ErrParse, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("jobs must be at least 1, got %d", cfg.Jobs)
	}
	return &cfg, nil
}

// readSettings returns the recognised keys of the manifest's [settings]
// table.
func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", model.ErrIO, path, err)
	}

	var f struct {
		Settings map[string]any `toml:"settings"`
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrParse, path, err)
	}

	settings := make(map[string]any, len(f.Settings))
	for k, val := range f.Settings {
		if settingsKeys[k] {
			settings[k] = val
		}
	}
	return settings, nil
}
