// Package descriptor reads and edits the package descriptor of a workspace
// member: Cargo.toml for Rust crates and package.json for npm packages.
//
// Editing is format preserving. Each parser records the byte range of every
// value it may rewrite (the package version and the version-carrying parts
// of dependency entries). A change is a splice of new bytes into that range,
// so comments, key order, whitespace and unrelated tables are kept byte for
// byte.
//
// Key responsibilities:
//   - Locate the descriptor of a member directory (Cargo.toml first)
//   - Parse the package name, version and dependency entries
//   - Set the package version
//   - Rewrite dependency references that point at other workspace members
//   - Write the result atomically (temp file + rename)
package descriptor
