// Package committer applies an approved staging proposal group by group.
package committer

import (
	"context"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/logging"
	"github.com/Iron-Ham/stagectl/internal/planner"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/store"
)

// Stager places requests into a staging slot atomically.
type Stager interface {
	Stage(ctx context.Context, slot string, ids []int64, opts store.StageOptions) (store.StageResult, error)
}

// GroupResult is the outcome of one committed group.
type GroupResult struct {
	Group   string
	Staging string
	store.StageResult
}

// Result reports a commit.
type Result struct {
	Committed []GroupResult
	// Skipped lists groups whose request set was empty.
	Skipped []string
}

// Committer commits proposals for one project.
type Committer struct {
	project string
	stager  Stager
	logger  *logging.Logger
	// OnGroup is called before each non-empty group is staged.
	OnGroup func(a planner.Assignment)
}

// New creates a Committer.
func New(project string, stager Stager, logger *logging.Logger) *Committer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Committer{project: project, stager: stager, logger: logger}
}

// Commit stages every non-empty group of p into its target slot, in group
// order. Each group is applied atomically and capacity is enforced; a
// failing group does not undo groups already committed. When any group
// fails the returned error is a *errors.PartialCommitFailure and Result
// lists what was committed.
func (c *Committer) Commit(ctx context.Context, p *planner.Proposal, opts store.StageOptions) (Result, error) {
	var result Result
	failed := map[string]error{}
	opts.EnforceCapacity = true

	for _, g := range p.Groups {
		if len(g.Requests) == 0 {
			result.Skipped = append(result.Skipped, g.Group)
			continue
		}
		if ctx.Err() != nil {
			failed[g.Group] = context.Cause(ctx)
			continue
		}
		if c.OnGroup != nil {
			c.OnGroup(g)
		}

		slot := request.StagingProject(c.project, g.Staging)
		logger := c.logger.WithStaging(slot).With("group", g.Group)
		res, err := c.stager.Stage(ctx, slot, g.IDs(), opts)
		if err != nil {
			logger.Error("group commit failed", "error", err)
			failed[g.Group] = err
			continue
		}
		logger.Info("group committed",
			"staged", len(res.Staged), "moved", len(res.Moved), "superseded", len(res.Superseded))
		result.Committed = append(result.Committed, GroupResult{Group: g.Group, Staging: g.Staging, StageResult: res})
	}

	if len(failed) > 0 {
		names := make([]string, len(result.Committed))
		for i, r := range result.Committed {
			names[i] = r.Group
		}
		return result, errors.NewPartialCommitFailure(failed, names)
	}
	return result, nil
}
