// Package version validates and derives the semantic versions written into
// package descriptors.
//
// Descriptor versions carry no "v" prefix ("1.2.3"); golang.org/x/mod/semver
// expects one, so every helper here converts at the boundary.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/mmr-tortoise/meta/internal/model"
)

// Keywords are the bump directives accepted in place of an explicit version.
var Keywords = []string{"major", "minor", "patch", "premajor", "preminor", "prepatch", "prerelease"}

// IsKeyword reports whether s is one of Keywords.
func IsKeyword(s string) bool {
	for _, k := range Keywords {
		if s == k {
			return true
		}
	}
	return false
}

// Normalize trims whitespace and a single leading "v".
func Normalize(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}

// Validate checks that s is a full semantic version (MAJOR.MINOR.PATCH with
// optional pre-release and build metadata) and returns it without a "v"
// prefix. semver accepts shorthands such as "1.2"; descriptors do not, so
// those are rejected.
func Validate(s string) (string, error) {
	v := Normalize(s)
	if v == "" {
		return "", fmt.Errorf("%w: empty version", model.ErrInvalidVersion)
	}
	prefixed := "v" + v
	if !semver.IsValid(prefixed) {
		return "", fmt.Errorf("%w: %q is not a semantic version", model.ErrInvalidVersion, s)
	}
	withoutBuild := strings.TrimSuffix(prefixed, semver.Build(prefixed))
	if semver.Canonical(prefixed) != withoutBuild {
		return "", fmt.Errorf("%w: %q must have major, minor and patch components", model.ErrInvalidVersion, s)
	}
	return v, nil
}

// IsValid reports whether Validate accepts s.
func IsValid(s string) bool {
	_, err := Validate(s)
	return err == nil
}

// Compare returns -1, 0 or +1 comparing two descriptor versions by
// semver precedence. Invalid versions sort before valid ones.
func Compare(a, b string) int {
	return semver.Compare("v"+Normalize(a), "v"+Normalize(b))
}

// Highest returns the greatest valid version in versions, or "" if none
// is valid.
func Highest(versions []string) string {
	best := ""
	for _, v := range versions {
		if !IsValid(v) {
			continue
		}
		if best == "" || Compare(v, best) > 0 {
			best = Normalize(v)
		}
	}
	return best
}

// Bump applies a bump keyword to current and returns the new version.
// Build metadata on current is discarded.
func Bump(current, keyword string) (string, error) {
	cur, err := Validate(current)
	if err != nil {
		return "", err
	}
	major, minor, patch, prerelease, err := split(cur)
	if err != nil {
		return "", err
	}

	switch keyword {
	case "major":
		// 1.0.0-rc.1 -> 1.0.0 rather than 2.0.0
		if !(prerelease != "" && minor == 0 && patch == 0) {
			major++
		}
		minor, patch, prerelease = 0, 0, ""
	case "minor":
		if !(prerelease != "" && patch == 0) {
			minor++
		}
		patch, prerelease = 0, ""
	case "patch":
		if prerelease == "" {
			patch++
		}
		prerelease = ""
	case "premajor":
		major++
		minor, patch, prerelease = 0, 0, "0"
	case "preminor":
		minor++
		patch, prerelease = 0, "0"
	case "prepatch":
		patch++
		prerelease = "0"
	case "prerelease":
		if prerelease == "" {
			patch++
			prerelease = "0"
			break
		}
		parts := strings.Split(prerelease, ".")
		last := parts[len(parts)-1]
		if n, err := strconv.Atoi(last); err == nil {
			parts[len(parts)-1] = strconv.Itoa(n + 1)
			prerelease = strings.Join(parts, ".")
		} else {
			prerelease += ".0"
		}
	default:
		return "", fmt.Errorf("%w: unknown bump keyword %q", model.ErrInvalidVersion, keyword)
	}

	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if prerelease != "" {
		v += "-" + prerelease
	}
	return v, nil
}

// Resolve turns a bump target into an explicit version. Keywords are
// applied to the highest of current; anything else must pass Validate.
func Resolve(target string, current []string) (string, error) {
	if !IsKeyword(target) {
		return Validate(target)
	}
	base := Highest(current)
	if base == "" {
		return "", fmt.Errorf("%w: no member has a valid version to apply %q to", model.ErrInvalidVersion, target)
	}
	return Bump(base, target)
}

// TagName joins a tag prefix and a version, tolerating a version that
// already carries the prefix.
func TagName(prefix, v string) string {
	v = strings.TrimSpace(v)
	if prefix != "" && strings.HasPrefix(v, prefix) {
		return v
	}
	return prefix + v
}

// split breaks a validated version (no "v", no build metadata) into its parts.
func split(v string) (major, minor, patch int, prerelease string, err error) {
	v = strings.TrimSuffix(v, semver.Build("v"+v))
	core, pre, _ := strings.Cut(v, "-")
	nums := strings.Split(core, ".")
	if len(nums) != 3 {
		return 0, 0, 0, "", fmt.Errorf("%w: unexpected version format %q", model.ErrInvalidVersion, v)
	}
	if major, err = strconv.Atoi(nums[0]); err != nil {
		return
	}
	if minor, err = strconv.Atoi(nums[1]); err != nil {
		return
	}
	if patch, err = strconv.Atoi(nums[2]); err != nil {
		return
	}
	return major, minor, patch, pre, nil
}
