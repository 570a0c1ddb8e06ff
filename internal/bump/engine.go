package bump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/meta/internal/descriptor"
	"github.com/mmr-tortoise/meta/internal/model"
	"github.com/mmr-tortoise/meta/internal/runner"
	"github.com/mmr-tortoise/meta/internal/version"
)

// Store reads and writes member descriptors.
type Store interface {
	Read(dir string) (*descriptor.Document, error)
	Write(doc *descriptor.Document) error
}

// Engine runs version bumps over a workspace.
type Engine struct {
	store  Store
	jobs   int
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJobs bounds how many descriptors are read, and later written,
// concurrently. Values below 1 mean 1.
func WithJobs(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.jobs = n
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		jobs:   1,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot is the state of every member before a bump.
type Snapshot struct {
	members []memberState
}

type memberState struct {
	member model.Member
	doc    *descriptor.Document
	err    error
}

// Versions returns the package name to version mapping of the readable
// members.
func (s *Snapshot) Versions() map[string]string {
	versions := make(map[string]string, len(s.members))
	for _, m := range s.members {
		if m.err == nil {
			versions[m.doc.Name()] = m.doc.Version()
		}
	}
	return versions
}

// Failed returns the number of members whose descriptor could not be read.
func (s *Snapshot) Failed() int {
	n := 0
	for _, m := range s.members {
		if m.err != nil {
			n++
		}
	}
	return n
}

func (s *Snapshot) currentVersions() []string {
	var vs []string
	for _, m := range s.members {
		if m.err == nil {
			vs = append(vs, m.doc.Version())
		}
	}
	return vs
}

// Snapshot reads the descriptor of every member of ws. Unreadable members
// are recorded, not returned as an error; the error is non-nil only when
// ctx is cancelled.
func (e *Engine) Snapshot(ctx context.Context, ws *model.Workspace) (*Snapshot, error) {
	states := make([]memberState, len(ws.Members))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.jobs)
	for i, m := range ws.Members {
		g.Go(func() error {
			states[i].member = m
			if err := gCtx.Err(); err != nil {
				states[i].err = err
				return err
			}
			doc, err := e.store.Read(m.Dir(ws.Root))
			if err != nil {
				e.logger.Debug("cannot read member", "member", m.Path, "error", err)
				states[i].err = fmt.Errorf("member %s: %w", m.Path, err)
				return nil
			}
			e.logger.Debug("read member", "member", m.Path, "name", doc.Name(), "version", doc.Version())
			states[i].doc = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot canceled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot canceled: %w", err)
	}
	return &Snapshot{members: states}, nil
}

// Resolve turns target (an explicit version or a bump keyword) into the
// version every member will be set to. Keywords apply to the highest
// version in the snapshot.
func (s *Snapshot) Resolve(target string) (string, error) {
	return version.Resolve(target, s.currentVersions())
}

// Apply sets every readable member of snap to target and rewrites the
// dependency references between members. Unless dryRun is set, modified
// descriptors are written back through a runner after all of them have
// been edited, so one failed write does not stop the others.
//
// target must already be a valid version (see Snapshot.Resolve).
func (e *Engine) Apply(ctx context.Context, snap *Snapshot, target string, dryRun bool) *model.Report {
	report := &model.Report{Command: "bump", DryRun: dryRun}

	// Every member is bumped to the same version, so each member name
	// maps to target.
	versions := make(map[string]string)
	for name := range snap.Versions() {
		versions[name] = target
	}

	for _, st := range snap.members {
		res := model.MemberResult{Path: st.member.Path}
		if st.err != nil {
			res.Err = st.err
			report.Results = append(report.Results, res)
			continue
		}
		res.Name = st.doc.Name()
		res.OldVersion = st.doc.Version()
		res.NewVersion = target

		updated, err := st.doc.SetVersion(target)
		if err != nil {
			res.Err = fmt.Errorf("member %s: %w", st.member.Path, err)
			report.Results = append(report.Results, res)
			continue
		}
		res.VersionUpdated = updated

		changes, err := st.doc.RewriteDependencies(versions)
		if err != nil {
			res.Err = fmt.Errorf("member %s: %w", st.member.Path, err)
			report.Results = append(report.Results, res)
			continue
		}
		res.Dependencies = changes
		report.Results = append(report.Results, res)
	}

	var (
		targets []runner.Target
		indices []int
		pending = make(map[string]*descriptor.Document)
	)
	for i, st := range snap.members {
		res := &report.Results[i]
		if res.Err != nil {
			continue
		}
		switch {
		case !res.Changed():
			res.Message = "unchanged"
		case dryRun:
			res.Message = "would update " + st.doc.Path()
		default:
			// Duplicate members share a directory and carry identical edits.
			dir := filepath.Dir(st.doc.Path())
			pending[dir] = st.doc
			targets = append(targets, runner.Target{Path: st.member.Path, Dir: dir, Members: []string{st.member.Path}})
			indices = append(indices, i)
		}
	}
	if len(targets) == 0 {
		return report
	}

	// The write phase starts only once every document has been edited.
	r := runner.New(runner.WithJobs(e.jobs), runner.WithLogger(e.logger))
	written := r.ApplyToAll(ctx, targets, func(ctx context.Context, t runner.Target) (string, error) {
		doc := pending[t.Dir]
		if err := e.store.Write(doc); err != nil {
			return "", err
		}
		e.logger.Debug("wrote descriptor", "path", doc.Path())
		return "updated " + doc.Path(), nil
	})
	for j, w := range written {
		res := &report.Results[indices[j]]
		switch {
		case w.Err == nil:
			res.Message = w.Message
		case errors.Is(w.Err, context.Canceled), errors.Is(w.Err, context.DeadlineExceeded):
			res.Err = fmt.Errorf("member %s: not written: %w", res.Path, ctx.Err())
		default:
			res.Err = fmt.Errorf("member %s: %w", res.Path, w.Err)
		}
	}
	return report
}

// Bump runs a complete bump of ws to target.
//
// An explicit target is validated before any descriptor is read; a
// keyword is resolved against the snapshot. Either way an invalid target
// yields an error wrapping model.ErrInvalidVersion and nothing is
// modified. Per-member failures are reported in the returned Report.
func (e *Engine) Bump(ctx context.Context, ws *model.Workspace, target string, dryRun bool) (*model.Report, error) {
	if !version.IsKeyword(target) {
		v, err := version.Validate(target)
		if err != nil {
			return nil, err
		}
		target = v
	}

	snap, err := e.Snapshot(ctx, ws)
	if err != nil {
		return nil, err
	}

	if failed := snap.Failed(); failed > 0 {
		e.logger.Debug("some members cannot be bumped", "failed", failed, "members", len(ws.Members))
	}

	resolved, err := snap.Resolve(target)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("resolved target version", "target", target, "version", resolved)

	return e.Apply(ctx, snap, resolved, dryRun), nil
}
