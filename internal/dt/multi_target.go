package dt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dt-go/internal/config"
)

// Operation names used in results, logs and history.
const (
	OpDeploy        = "deploy"
	OpRollback      = "rollback"
	OpPrune         = "prune"
	OpList          = "list"
	OpGenerateIndex = "generate-index"
)

// TargetResult is the outcome of one operation on one target.
type TargetResult struct {
	Host     string
	Op       string
	Release  string
	Releases []Release
	Err      error
	Duration time.Duration
}

// MultiTarget replays release operations across every target of a
// deployment. A failure on one target never stops the others; the
// aggregate error is returned once every target was attempted.
type MultiTarget struct {
	deployment *config.Deployment
	releaser   Releaser
	dialer     Dialer
	transferer Transferer
	tasks      *TaskRegistry
	git        GitInspector
	logger     Logger
	clock      Clock

	once       sync.Once
	targets    []*Target
	targetsErr error
}

// NewMultiTarget creates a MultiTarget for d. tasks and git may be nil when
// the deployment uses no tasks and no git check.
func NewMultiTarget(d *config.Deployment, releaser Releaser, dialer Dialer, transferer Transferer, tasks *TaskRegistry, git GitInspector, logger Logger, clock Clock) *MultiTarget {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &MultiTarget{
		deployment: d,
		releaser:   releaser,
		dialer:     dialer,
		transferer: transferer,
		tasks:      tasks,
		git:        git,
		logger:     logger,
		clock:      clock,
	}
}

// Name returns the deployment name.
func (m *MultiTarget) Name() string {
	return m.deployment.Name
}

// Targets builds one Target per configured target, in declaration order.
// The result is computed once.
func (m *MultiTarget) Targets() ([]*Target, error) {
	m.once.Do(func() {
		configs := m.deployment.TargetConfigs()
		targets := make([]*Target, 0, len(configs))
		for i, cfg := range configs {
			t, err := NewTarget(cfg, m.dialer, m.transferer)
			if err != nil {
				m.targetsErr = fmt.Errorf("target %d: %w", i, err)
				return
			}
			targets = append(targets, t)
		}
		m.targets = targets
	})
	return m.targets, m.targetsErr
}

// Deploy checks the local checkout, runs the build task once, creates a
// release on every target and finally runs the post-deploy task once. The
// post-deploy task is skipped if any target failed.
func (m *MultiTarget) Deploy(ctx context.Context) ([]TargetResult, error) {
	targets, err := m.resolveTargets()
	if err != nil {
		return nil, err
	}

	if m.deployment.CheckGit {
		if m.git == nil {
			return nil, fmt.Errorf("%w: no git inspector configured", ErrUnsafeDeploy)
		}
		if err := m.git.Check(m.deployment.GitBranch); err != nil {
			m.logger.Error("exiting due to git check failing", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUnsafeDeploy, err)
		}
	}

	build, err := m.invokeBuildTask(ctx)
	if err != nil {
		return nil, err
	}

	results, err := m.fanOut(ctx, targets, OpDeploy, m.deployment.Parallel, func(ctx context.Context, t *Target, res *TargetResult) error {
		rel, err := m.releaser.CreateRelease(ctx, t, build)
		res.Release = rel.Name
		return err
	})
	if err != nil {
		if m.deployment.PostDeployTask != "" {
			m.logger.Warn("skipping post-deploy task, not every target was released", "task", m.deployment.PostDeployTask)
		}
		return results, err
	}

	if name := m.deployment.PostDeployTask; name != "" {
		m.logger.Info("running post-deploy task", "task", name)
		if _, err := m.invokeTask(ctx, name); err != nil {
			return results, fmt.Errorf("post-deploy task %s: %w", name, err)
		}
	}
	return results, nil
}

func (m *MultiTarget) invokeBuildTask(ctx context.Context) (map[string]any, error) {
	name := m.deployment.BuildTask
	if name == "" {
		return map[string]any{}, nil
	}
	m.logger.Info("running build task", "task", name)
	out, err := m.invokeTask(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("build task %s: %w", name, err)
	}
	return NormalizeBuildData(out), nil
}

func (m *MultiTarget) invokeTask(ctx context.Context, name string) (any, error) {
	if m.tasks == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return m.tasks.Invoke(ctx, name)
}

// RollbackRelease rolls back every target.
func (m *MultiTarget) RollbackRelease(ctx context.Context) ([]TargetResult, error) {
	targets, err := m.resolveTargets()
	if err != nil {
		return nil, err
	}
	return m.fanOut(ctx, targets, OpRollback, m.deployment.Parallel, func(ctx context.Context, t *Target, res *TargetResult) error {
		return m.releaser.RollbackRelease(ctx, t)
	})
}

// PruneReleases prunes every target. Targets are always processed one at a
// time because prune prompts the operator.
func (m *MultiTarget) PruneReleases(ctx context.Context) ([]TargetResult, error) {
	targets, err := m.resolveTargets()
	if err != nil {
		return nil, err
	}
	return m.fanOut(ctx, targets, OpPrune, 1, func(ctx context.Context, t *Target, res *TargetResult) error {
		return m.releaser.PruneReleases(ctx, t)
	})
}

// ListReleases returns the tracked releases of every target, labeled by host.
func (m *MultiTarget) ListReleases(ctx context.Context) ([]TargetResult, error) {
	targets, err := m.resolveTargets()
	if err != nil {
		return nil, err
	}
	return m.fanOut(ctx, targets, OpList, m.deployment.Parallel, func(ctx context.Context, t *Target, res *TargetResult) error {
		releases, err := m.releaser.ListReleases(ctx, t)
		res.Releases = releases
		return err
	})
}

type indexGenerator interface {
	GenerateIndex(ctx context.Context, t *Target) error
}

// GenerateIndex regenerates the release index on every target. Only
// strategies that publish an index support it.
func (m *MultiTarget) GenerateIndex(ctx context.Context) ([]TargetResult, error) {
	gen, ok := m.releaser.(indexGenerator)
	if !ok {
		return nil, fmt.Errorf("deployment %s does not publish a release index", m.Name())
	}
	targets, err := m.resolveTargets()
	if err != nil {
		return nil, err
	}
	return m.fanOut(ctx, targets, OpGenerateIndex, m.deployment.Parallel, func(ctx context.Context, t *Target, res *TargetResult) error {
		return gen.GenerateIndex(ctx, t)
	})
}

func (m *MultiTarget) resolveTargets() ([]*Target, error) {
	targets, err := m.Targets()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	return targets, nil
}

// fanOut runs fn on every target, at most parallel at a time. Each target's
// operation holds the target's lock and closes its session afterwards.
func (m *MultiTarget) fanOut(ctx context.Context, targets []*Target, op string, parallel int, fn func(ctx context.Context, t *Target, res *TargetResult) error) ([]TargetResult, error) {
	results := make([]TargetResult, len(targets))

	run := func(i int) {
		t := targets[i]
		log := withTarget(m.logger, t)

		t.Lock()
		defer t.Unlock()

		start := m.clock.Now()
		res := TargetResult{Host: t.Host(), Op: op}
		err := fn(ctx, t, &res)
		if cerr := t.Close(); cerr != nil {
			log.Warn("closing session", "error", cerr)
		}
		res.Duration = m.clock.Now().Sub(start)

		if err != nil {
			res.Err = &TargetError{Host: t.Host(), Op: op, Err: err}
			log.Error(op+" failed", "error", err)
		} else {
			log.Debug(op+" finished", "duration", res.Duration)
		}
		results[i] = res
	}

	if parallel <= 1 {
		for i := range targets {
			run(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(parallel)
		for i := range targets {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}
