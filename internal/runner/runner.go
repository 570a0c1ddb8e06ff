// Package runner broadcasts an operation to every member (or repository)
// of a workspace and collects one result per target.
//
// A failure on one target never stops the others and nothing is rolled
// back. Targets run one at a time unless more jobs are configured.
package runner

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/meta/internal/model"
)

// Target is one unit an operation runs on.
type Target struct {
	// Path is the label used in reports: a member path, or a repository
	// directory relative to the workspace root.
	Path string

	// Dir is the absolute directory the operation runs in.
	Dir string

	// Members lists the member paths covered by the target.
	Members []string
}

// Op runs an operation on one target and returns a short message
// describing what happened.
type Op func(ctx context.Context, t Target) (string, error)

// Runner executes operations over a set of targets.
type Runner struct {
	jobs   int
	logger *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithJobs sets the number of targets processed at once. Values below 1
// mean 1.
func WithJobs(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.jobs = n
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{jobs: 1, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyToAll runs op on every target and returns the results in target
// order. The message returned by op is kept only on success. Targets not
// yet started when ctx is cancelled are reported as failed with the
// context error.
func (r *Runner) ApplyToAll(ctx context.Context, targets []Target, op Op) []model.MemberResult {
	results := make([]model.MemberResult, len(targets))

	var g errgroup.Group
	g.SetLimit(r.jobs)
	for i, t := range targets {
		results[i] = model.MemberResult{Path: t.Path}
		if len(t.Members) > 1 || (len(t.Members) == 1 && t.Members[0] != t.Path) {
			results[i].Members = t.Members
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = fmt.Errorf("%s: %w", t.Path, err)
				return nil
			}
			r.logger.Debug("running", "target", t.Path, "dir", t.Dir)
			msg, err := op(ctx, t)
			if err != nil {
				r.logger.Debug("failed", "target", t.Path, "error", err)
				results[i].Err = err
				return nil
			}
			results[i].Message = msg
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in results
	return results
}

// MemberTargets returns one target per workspace member.
func MemberTargets(ws *model.Workspace) []Target {
	targets := make([]Target, 0, len(ws.Members))
	for _, m := range ws.Members {
		targets = append(targets, Target{
			Path:    m.Path,
			Dir:     m.Dir(ws.Root),
			Members: []string{m.Path},
		})
	}
	return targets
}

// RepoResolver finds the root of the git repository containing dir.
type RepoResolver interface {
	RepoRoot(ctx context.Context, dir string) (string, error)
}

// GroupByRepository groups the workspace members by the git repository
// they live in, so that members sharing a repository get a single target.
// Groups are ordered by the first member of each. Members that are not
// inside a repository are returned as failed results.
func GroupByRepository(ctx context.Context, ws *model.Workspace, resolver RepoResolver) ([]Target, []model.MemberResult) {
	var (
		targets  []Target
		failures []model.MemberResult
		index    = make(map[string]int)
	)
	for _, m := range ws.Members {
		root, err := resolver.RepoRoot(ctx, m.Dir(ws.Root))
		if err != nil {
			failures = append(failures, model.MemberResult{
				Path: m.Path,
				Err:  fmt.Errorf("member %s: %w", m.Path, err),
			})
			continue
		}
		if i, ok := index[root]; ok {
			targets[i].Members = append(targets[i].Members, m.Path)
			continue
		}
		index[root] = len(targets)
		targets = append(targets, Target{
			Path:    repoLabel(ws.Root, root),
			Dir:     root,
			Members: []string{m.Path},
		})
	}
	return targets, failures
}

// repoLabel names a repository relative to the workspace root. git reports
// symlink-resolved paths, so the root is resolved too when the plain
// relative path escapes it.
func repoLabel(wsRoot, repoRoot string) string {
	rel, err := filepath.Rel(wsRoot, repoRoot)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	if resolved, rerr := filepath.EvalSymlinks(wsRoot); rerr == nil {
		if r, err := filepath.Rel(resolved, repoRoot); err == nil && !strings.HasPrefix(r, "..") {
			return filepath.ToSlash(r)
		}
	}
	if err != nil {
		return repoRoot
	}
	return filepath.ToSlash(rel)
}
