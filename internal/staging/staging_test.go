package staging_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/stagectl/internal/catalog"
	"github.com/Iron-Ham/stagectl/internal/classifier"
	"github.com/Iron-Ham/stagectl/internal/config"
	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/exclusive"
	"github.com/Iron-Ham/stagectl/internal/ignore"
	"github.com/Iron-Ham/stagectl/internal/planner"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
	"github.com/Iron-Ham/stagectl/internal/staging"
	"github.com/Iron-Ham/stagectl/internal/store"
	"github.com/Iron-Ham/stagectl/internal/validator"
)

const project = "openSUSE:Factory"

var frozen = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func action(kind request.ActionKind, src, pkg string) []request.Action {
	return []request.Action{{
		Type:   kind,
		Source: request.Identity{Project: src, Package: pkg},
		Target: request.Identity{Project: project, Package: pkg},
	}}
}

type env struct {
	svc     *staging.Service
	store   *store.Store
	catalog *catalog.Catalog
	out     *bytes.Buffer
	lockDir string
}

type option func(*staging.Config)

func setup(t *testing.T, opts ...option) *env {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Seed(ctx, &store.Fixture{
		Project: project,
		Stagings: []store.FixtureStaging{
			{Name: "A", Capacity: 2},
			{Name: "B"},
			{Name: "C", State: string(request.SlotAcceptable)},
			{Name: "D"},
		},
		Requests: []store.FixtureRequest{
			{ID: 1, Actions: action(request.Submit, "devel:gcc", "gcc")},
			{ID: 2, Actions: action(request.Submit, "devel:tools", "make")},
			{ID: 3, Actions: action(request.Submit, "home:someone", "hello"), Staging: "C"},
			{ID: 4, Actions: action(request.AddRole, "", "vim")},
			{ID: 5, Actions: action(request.Submit, "home:other", "hello")},
			{ID: 6, Actions: []request.Action{{
				Type:   request.Submit,
				Source: request.Identity{Project: "devel:tools", Package: "x"},
				Target: request.Identity{Project: "openSUSE:Leap:15.6", Package: "x"},
			}}},
		},
		Devel: []store.FixtureDevel{{Package: "gcc", DevelProject: "devel:gcc"}},
	}))

	lockDir := t.TempDir()
	session := exclusive.NewSession(exclusive.NewFileLocker(lockDir, project, "test"), project, 0, nil)
	cat := catalog.New(catalog.Config{
		Project: project,
		Backend: s,
		Ignores: ignore.NewList(s.Ignores(project)),
		Guard:   session,
	})

	out := &bytes.Buffer{}
	cfg := staging.Config{
		Catalog:       cat,
		Backend:       s,
		Session:       session,
		BootstrapRing: "0-Bootstrap",
		Out:           out,
		Now:           func() time.Time { return frozen },
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &env{svc: staging.New(cfg), store: s, catalog: cat, out: out, lockDir: lockDir}
}

func (e *env) members(t *testing.T, short string) []int64 {
	t.Helper()
	slot, err := e.store.Slot(context.Background(), request.StagingProject(project, short))
	require.NoError(t, err)
	return slot.Members
}

func TestList(t *testing.T) {
	e := setup(t)
	listing, err := e.svc.List(context.Background(), nil, true)
	require.NoError(t, err)

	var groups []string
	var ids [][]int64
	for _, g := range listing.Groups {
		groups = append(groups, g.DevelProject)
		ids = append(ids, request.IDs(g.Requests))
	}
	assert.Equal(t, []string{"devel:gcc", "devel:tools", "home:other"}, groups)
	assert.Equal(t, [][]int64{{1}, {2}, {5}}, ids)

	require.Len(t, listing.Supersedes, 1)
	assert.Equal(t, int64(5), listing.Supersedes[0].Request.ID)
	assert.Equal(t, int64(3), listing.Supersedes[0].Staged.ID)
}

func TestList_RestrictedToArgs(t *testing.T) {
	e := setup(t)
	listing, err := e.svc.List(context.Background(), []string{"gcc", "5"}, true)
	require.NoError(t, err)

	var ids []int64
	for _, g := range listing.Groups {
		ids = append(ids, request.IDs(g.Requests)...)
	}
	assert.Equal(t, []int64{1, 5}, ids)
	require.Len(t, listing.Supersedes, 1)
	assert.Equal(t, int64(5), listing.Supersedes[0].Request.ID)

	listing, err = e.svc.List(context.Background(), []string{"nonexistent"}, false)
	require.NoError(t, err)
	assert.Empty(t, listing.Groups)
}

func TestList_ShowsIgnored(t *testing.T) {
	e := setup(t)
	_, err := e.svc.Ignore(context.Background(), []string{"2"}, "needs a rebuild")
	require.NoError(t, err)

	listing, err := e.svc.List(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, listing.Supersedes)
	tools := listing.Groups[1].Requests[0]
	assert.True(t, tools.Ignored)
	assert.Equal(t, "needs a rebuild", tools.IgnoreMessage)
}

func TestSelect_Explicit(t *testing.T) {
	e := setup(t)
	res, err := e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"B", "1", "make"}})
	require.NoError(t, err)

	require.NotNil(t, res.Explicit)
	assert.Equal(t, "B", res.Staging)
	assert.Equal(t, []int64{1, 2}, res.Explicit.Staged)
	assert.Equal(t, []int64{1, 2}, e.members(t, "B"))
	assert.Contains(t, e.out.String(), "Selected 1 into B")

	r, err := e.catalog.Request(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, request.StagingProject(project, "B"), r.Staging, "catalog reloads after a mutation")
}

func TestSelect_ExplicitMove(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.svc.Select(ctx, staging.SelectOptions{Args: []string{"A", "3"}})
	assert.ErrorIs(t, err, errors.ErrAlreadyStaged)

	_, err = e.svc.Select(ctx, staging.SelectOptions{Args: []string{"A", "3"}, Move: true, From: "B"})
	assert.ErrorIs(t, err, errors.ErrAlreadyStaged)

	res, err := e.svc.Select(ctx, staging.SelectOptions{Args: []string{"A", "3"}, Move: true, From: "C"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.Explicit.Moved)
	assert.Equal(t, []int64{3}, e.members(t, "A"))
	assert.Empty(t, e.members(t, "C"))
}

func TestSelect_MoveNeedsExplicitMode(t *testing.T) {
	e := setup(t)
	_, err := e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"1"}, Move: true})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "--move and --from must be used with explicit staging and request list")
}

func TestSelect_Proposal(t *testing.T) {
	var asked []string
	e := setup(t, func(c *staging.Config) {
		c.Confirm = staging.ConfirmFunc(func(_ context.Context, q string) (bool, error) {
			asked = append(asked, q)
			return true, nil
		})
	})

	res, err := e.svc.Select(context.Background(), staging.SelectOptions{GroupBy: []string{"devel_project"}})
	require.NoError(t, err)
	assert.Equal(t, []string{staging.ConfirmQuestion}, asked)
	require.NotNil(t, res.Commit)
	assert.Len(t, res.Commit.Committed, 3)

	// The add_role request stays out by default.
	assert.Equal(t, []int64{1}, e.members(t, "A"))
	assert.Equal(t, []int64{2}, e.members(t, "B"))
	assert.Equal(t, []int64{5}, e.members(t, "D"))

	out := e.out.String()
	assert.Contains(t, out, "devel:gcc:\n  staging: A\n")
	assert.Contains(t, out, "Staging A\nStaging B\nStaging D\n")
}

func TestSelect_ProposalRestricted(t *testing.T) {
	e := setup(t)
	res, err := e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"D", "1", "2"}, GroupBy: []string{"devel_project"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, res.Proposal.Considered)
	assert.Equal(t, []int64{1}, e.members(t, "D"), "only one group fits the single empty slot")
	require.Len(t, res.Proposal.Unassignable, 1)
	assert.Equal(t, "devel:tools", res.Proposal.Unassignable[0].Group)
}

func TestSelect_ProposalDeclined(t *testing.T) {
	e := setup(t, func(c *staging.Config) {
		c.Confirm = staging.ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	})
	res, err := e.svc.Select(context.Background(), staging.SelectOptions{})
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, e.out.String(), "Quit")
	assert.Empty(t, e.members(t, "A"))
	assert.Empty(t, e.members(t, "B"))
}

func TestSelect_EmptyProposal(t *testing.T) {
	e := setup(t)
	res, err := e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"no-such-package"}})
	require.NoError(t, err)
	assert.True(t, res.Proposal.Empty())
	assert.Nil(t, res.Commit)
	assert.Contains(t, e.out.String(), "Empty proposal")
}

func TestSelect_Interactive(t *testing.T) {
	t.Run("amended", func(t *testing.T) {
		var seen string
		e := setup(t, func(c *staging.Config) {
			c.Amender = planner.AmenderFunc(func(_ context.Context, doc []byte) ([]byte, error) {
				seen = string(doc)
				return []byte("default:\n  staging: B\n  requests:\n    2: make\n"), nil
			})
		})
		_, err := e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"1", "2"}, Interactive: true})
		require.NoError(t, err)
		assert.Contains(t, seen, "# - considered: A, B, C, D")
		assert.Equal(t, []int64{2}, e.members(t, "B"))
		assert.Empty(t, e.members(t, "A"))
	})

	t.Run("aborted", func(t *testing.T) {
		e := setup(t, func(c *staging.Config) {
			c.Amender = planner.AmenderFunc(func(context.Context, []byte) ([]byte, error) {
				return nil, errors.ErrProposalAborted
			})
		})
		_, err := e.svc.Select(context.Background(), staging.SelectOptions{Interactive: true})
		assert.ErrorIs(t, err, errors.ErrProposalAborted)
		for _, short := range []string{"A", "B", "D"} {
			assert.Empty(t, e.members(t, short))
		}
	})

	t.Run("everything removed", func(t *testing.T) {
		e := setup(t, func(c *staging.Config) {
			c.Amender = planner.AmenderFunc(func(context.Context, []byte) ([]byte, error) {
				return []byte("default:\n  staging: A\n  requests: {}\n"), nil
			})
		})
		res, err := e.svc.Select(context.Background(), staging.SelectOptions{Interactive: true})
		require.NoError(t, err)
		assert.Nil(t, res.Commit)
		assert.Contains(t, e.out.String(), "Empty proposal")
	})

	t.Run("unavailable", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.Select(context.Background(), staging.SelectOptions{Interactive: true})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestSelect_LockContention(t *testing.T) {
	e := setup(t)
	holder := exclusive.NewFileLocker(e.lockDir, project, "other")
	ok, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = holder.Unlock(context.Background()) })

	_, err = e.svc.Select(context.Background(), staging.SelectOptions{Args: []string{"B", "1"}})
	var contention *errors.LockContention
	require.ErrorAs(t, err, &contention)
	assert.Empty(t, e.members(t, "B"))
}

func TestUnselect(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	removed, err := e.svc.Unselect(ctx, []string{"3"})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{3: "C"}, removed)
	assert.Empty(t, e.members(t, "C"))

	_, err = e.svc.Unselect(ctx, []string{"2"})
	assert.ErrorIs(t, err, errors.ErrNotStaged)
}

func TestIgnore(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	n, err := e.svc.Ignore(ctx, []string{"1", "2", "1", "99", "6", "abc"}, "wait for gcc 14")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out := e.out.String()
	assert.Contains(t, out, "Processing 99\n- not found\n")
	assert.Contains(t, out, "Processing 6\n- not targeting openSUSE:Factory\n")
	assert.Contains(t, out, "Ignoring 2 requests")

	comments, err := e.store.Comments(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, comments, "wait for gcc 14")

	persisted, err := e.store.Ignores(project).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "wait for gcc 14", 2: "wait for gcc 14"}, persisted)

	e.out.Reset()
	n, err = e.svc.Ignore(ctx, []string{"1"}, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, e.out.String(), "No new requests to ignore")
}

func TestIgnore_ExcludedFromDefaultProposal(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.svc.Ignore(ctx, []string{"1", "2"}, "")
	require.NoError(t, err)

	res, err := e.svc.Select(ctx, staging.SelectOptions{})
	require.NoError(t, err)
	var staged []int64
	for _, g := range res.Proposal.Groups {
		staged = append(staged, g.IDs()...)
	}
	assert.Equal(t, []int64{5}, staged)
}

func TestUnignore(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.svc.Ignore(ctx, []string{"1", "2"}, "")
	require.NoError(t, err)

	n, err := e.svc.Unignore(ctx, []string{"1", "5"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, e.out.String(), "5 is not ignored")

	n, err = e.svc.Unignore(ctx, []string{"all"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	persisted, err := e.store.Ignores(project).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)

	n, err = e.svc.Unignore(ctx, []string{"all"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.svc.Unignore(ctx, []string{"gcc"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestAccept(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.svc.Accept(ctx, []string{"C", "A"}, false)
	assert.ErrorIs(t, err, errors.ErrNotAcceptable)
	assert.Equal(t, []int64{3}, e.members(t, "C"), "nothing accepted when one slot is not acceptable")

	accepted, err := e.svc.Accept(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, map[string][]int64{"C": {3}}, accepted)
	assert.Empty(t, e.members(t, "C"))

	r, err := e.store.Request(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, request.StateAccepted, r.State)

	_, err = e.svc.Select(ctx, staging.SelectOptions{Args: []string{"A", "1"}})
	require.NoError(t, err)
	accepted, err = e.svc.Accept(ctx, []string{"A"}, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, accepted["A"])
}

func TestFreeze(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Freeze(ctx, []string{"A"}, true))
	slot, err := e.store.Slot(ctx, request.StagingProject(project, "A"))
	require.NoError(t, err)
	assert.Equal(t, request.SlotBuilding, slot.State)
	assert.True(t, slot.Bootstrap)
	assert.WithinDuration(t, frozen, slot.FrozenAt, time.Second)

	assert.ErrorIs(t, e.svc.Freeze(ctx, []string{"Q"}, true), errors.ErrStagingNotFound)
}

func TestFrozenAge(t *testing.T) {
	now := frozen
	e := setup(t, func(c *staging.Config) { c.Now = func() time.Time { return now } })
	ctx := context.Background()
	require.NoError(t, e.svc.Freeze(ctx, []string{"A"}, false))

	now = frozen.Add(36 * time.Hour)
	ages, err := e.svc.FrozenAge(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.InDelta(t, float64(36*time.Hour), float64(ages["A"]), float64(time.Second))
	assert.NotContains(t, ages, "B")

	out := e.out.String()
	assert.Contains(t, out, "openSUSE:Factory:Staging:A last frozen 1.5 days ago")
	assert.Contains(t, out, "openSUSE:Factory:Staging:B has never been frozen")
}

// specSource writes a spec file for each known "project/package".
type specSource map[string][2]string

func (s specSource) Checkout(_ context.Context, ref request.Identity, dest string) error {
	info, ok := s[ref.Project+"/"+ref.Package]
	if !ok {
		return errors.NewNotFoundError("package", ref.String()).WithCause(errors.ErrSnapshotNotFound)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	body := fmt.Sprintf("Name: %s\nVersion: %s\n", info[0], info[1])
	return os.WriteFile(filepath.Join(dest, ref.Package+".spec"), []byte(body), 0o644)
}

func TestValidate(t *testing.T) {
	e := setup(t, func(c *staging.Config) {
		c.Validator = validator.New(validator.Config{
			Policy:    config.Default().Policy,
			Directory: c.Backend.(*store.Store),
			Snapshots: specSource{
				project + "/gcc":   {"gcc", "13.1"},
				"devel:gcc/gcc":    {"gcc", "13.2"},
				"devel:tools/make": {"make", "4.4"},
			},
			Classifier: classifier.Func(func(context.Context, classifier.Input) (classifier.Result, error) {
				return classifier.Result{Magnitude: 3, HasMarker: true}, nil
			}),
			WorkDir:     t.TempDir(),
			Parallelism: 2,
		})
	})
	ctx := context.Background()

	res, err := e.svc.Validate(ctx, []string{"2", "gcc"})
	require.NoError(t, err)
	assert.Equal(t, validator.Summary{Accepted: 1, Declined: 1}, res.Summary)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, int64(1), res.Outcomes[0].Request.ID)

	reviews, err := e.store.Reviews(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, review.User("factory-repo-checker"), reviews[0].Target)

	declined, err := e.store.Request(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, request.StateDeclined, declined.State)
	assert.Contains(t, e.out.String(), "2: declined: devel:tools is not a devel project of openSUSE:Factory")
}

func TestValidate_NoValidator(t *testing.T) {
	e := setup(t)
	_, err := e.svc.Validate(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSeed(t *testing.T) {
	e := setup(t)
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
requests:
  - id: 50
    actions:
      - type: submit
        source: {project: devel:languages:perl, package: perl-Moose}
        target: {package: perl-Moose}
`), 0o644))

	require.NoError(t, e.svc.Seed(context.Background(), path))
	r, err := e.catalog.Request(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, project, r.Project())
	assert.Equal(t, "devel:languages:perl", r.DevelProject)
}
