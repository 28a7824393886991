package staging

import (
	"context"
	"strings"

	"github.com/Iron-Ham/stagectl/internal/committer"
	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/filter"
	"github.com/Iron-Ham/stagectl/internal/planner"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/store"
)

// ConfirmQuestion is asked before a proposal is committed.
const ConfirmQuestion = "Accept proposal? [y/n] (y): "

// SelectOptions controls Select.
type SelectOptions struct {
	// Args mixes staging names and requests (ids or package names).
	Args []string
	// Move and From are only valid with exactly one staging and a request
	// list.
	Move bool
	From string

	FilterBy    []string
	GroupBy     []string
	Interactive bool
}

// SelectResult reports what Select did.
type SelectResult struct {
	// Explicit is set when requests were staged directly into one slot.
	Explicit *store.StageResult
	Staging  string

	// Proposal is the proposal that was committed or declined.
	Proposal *planner.Proposal
	Commit   *committer.Result
	// Aborted is set when the operator declined the proposal.
	Aborted bool
}

// Select stages requests. Given exactly one staging, a request list and no
// filter or grouping it stages the requests into that slot. Otherwise it
// builds a proposal over the backlog, optionally restricted to the given
// requests and stagings, lets the operator amend and approve it, and
// commits it group by group.
func (s *Service) Select(ctx context.Context, opts SelectOptions) (*SelectResult, error) {
	var result *SelectResult
	err := s.locked(ctx, "select", func(ctx context.Context) error {
		stagings, reqArgs, err := s.splitArgs(ctx, opts.Args)
		if err != nil {
			return err
		}

		if len(stagings) == 1 && len(reqArgs) > 0 && len(opts.FilterBy) == 0 && len(opts.GroupBy) == 0 {
			result, err = s.selectExplicit(ctx, stagings[0], reqArgs, opts)
			return err
		}
		if opts.Move || opts.From != "" {
			return errors.NewValidationError("--move and --from must be used with explicit staging and request list")
		}
		result, err = s.selectProposal(ctx, stagings, reqArgs, opts)
		return err
	})
	return result, err
}

// splitArgs separates staging names from request arguments. A name that
// matches an existing slot is taken as a staging.
func (s *Service) splitArgs(ctx context.Context, args []string) (stagings, reqs []string, err error) {
	seen := map[string]bool{}
	for _, arg := range args {
		if seen[arg] {
			continue
		}
		seen[arg] = true
		isSlot, err := s.catalog.IsSlot(ctx, arg)
		if err != nil {
			return nil, nil, err
		}
		if isSlot {
			stagings = append(stagings, s.catalog.ShortName(request.StagingProject(s.Project(), arg)))
		} else {
			reqs = append(reqs, arg)
		}
	}
	return stagings, reqs, nil
}

func (s *Service) selectExplicit(ctx context.Context, staging string, args []string, opts SelectOptions) (*SelectResult, error) {
	reqs, err := s.resolve(ctx, args)
	if err != nil {
		return nil, err
	}
	from := ""
	if opts.From != "" {
		from = request.StagingProject(s.Project(), opts.From)
	}

	slot := request.StagingProject(s.Project(), staging)
	res, err := s.backend.Stage(ctx, slot, request.IDs(reqs), store.StageOptions{Move: opts.Move, From: from})
	if err != nil {
		return nil, err
	}
	for _, id := range res.Staged {
		s.printf("Selected %d into %s", id, staging)
	}
	for _, id := range res.Moved {
		s.printf("Moved %d into %s", id, staging)
	}
	for _, id := range res.Superseded {
		s.printf("Superseded %d in %s", id, staging)
	}
	for _, id := range res.Unchanged {
		s.printf("%d is already in %s", id, staging)
	}
	return &SelectResult{Explicit: &res, Staging: staging}, nil
}

func (s *Service) selectProposal(ctx context.Context, stagings, args []string, opts SelectOptions) (*SelectResult, error) {
	var preds []filter.Predicate
	if len(args) > 0 {
		preds = append(preds, filter.Requests(args))
	}
	if len(preds) == 0 && len(opts.FilterBy) == 0 {
		preds = filter.Defaults()
	}
	userPreds, err := filter.ParseAll(opts.FilterBy)
	if err != nil {
		return nil, err
	}
	preds = append(preds, userPreds...)

	keys, err := filter.ParseKeys(opts.GroupBy)
	if err != nil {
		return nil, err
	}

	open, err := s.catalog.OpenRequests(ctx)
	if err != nil {
		return nil, err
	}
	var backlog, staged []request.Request
	for _, r := range open {
		if r.IsStaged() {
			staged = append(staged, r)
		} else {
			backlog = append(backlog, r)
		}
	}
	slots, err := s.catalog.Slots(ctx)
	if err != nil {
		return nil, err
	}

	proposal, err := planner.Propose(planner.Input{
		Project:       s.Project(),
		Groups:        filter.GroupBy(filter.Filter(backlog, preds...), keys),
		Keys:          keys,
		Slots:         slots,
		Staged:        staged,
		Stagings:      stagings,
		BootstrapRing: s.bootstrapRing,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate proposal")
	}
	for _, u := range proposal.Unassignable {
		s.printf("Unassignable %s: %v", u.Group, u.Err)
	}
	result := &SelectResult{Proposal: proposal}
	if proposal.Empty() {
		s.printf("Empty proposal")
		return result, nil
	}

	if opts.Interactive {
		if s.amender == nil {
			return nil, errors.NewValidationError("interactive mode is not available").WithField("interactive")
		}
		if proposal, err = s.amend(ctx, proposal); err != nil {
			return nil, err
		}
		result.Proposal = proposal
		if proposal.Empty() {
			s.printf("Empty proposal")
			return result, nil
		}
	}

	doc, err := planner.Render(proposal, false)
	if err != nil {
		return nil, err
	}
	s.printf("%s", strings.TrimRight(string(doc), "\n"))

	ok, err := s.confirm.Confirm(ctx, ConfirmQuestion)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.printf("Quit")
		result.Aborted = true
		return result, nil
	}

	c := committer.New(s.Project(), s.backend, s.logger)
	c.OnGroup = func(a planner.Assignment) { s.printf("Staging %s", a.Staging) }
	commit, err := c.Commit(ctx, proposal, store.StageOptions{})
	result.Commit = &commit
	return result, err
}

func (s *Service) amend(ctx context.Context, p *planner.Proposal) (*planner.Proposal, error) {
	doc, err := planner.Render(p, true)
	if err != nil {
		return nil, err
	}
	edited, err := s.amender.Amend(ctx, doc)
	if err != nil {
		return nil, err
	}
	amended, err := planner.Parse(edited)
	if err != nil {
		return nil, err
	}
	amended.Considered = p.Considered
	amended.Remaining = p.Remaining
	return amended, nil
}
