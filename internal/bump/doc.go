// Package bump sets every workspace member to a target version and
// rewrites the dependency references between members so the workspace
// stays internally consistent.
//
// A bump runs in two phases:
//
//  1. Snapshot: every member descriptor is read (concurrently, up to the
//     configured number of jobs) and the package name to version mapping
//     is built. The phase completes before anything is written.
//  2. Apply: each readable member gets the target version, and every
//     dependency on another member is rewritten to reference it. Modified
//     descriptors are then written back one by one.
//
// Members whose descriptor cannot be read or written are reported as
// failed; they never stop the others.
package bump
