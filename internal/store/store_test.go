package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
)

const project = "openSUSE:Factory"

func submit(src, pkg string) []request.Action {
	return []request.Action{{
		Type:   request.Submit,
		Source: request.Identity{Project: src, Package: pkg, Revision: "1"},
		Target: request.Identity{Project: project, Package: pkg},
	}}
}

func fixture() *Fixture {
	return &Fixture{
		Project: project,
		Stagings: []FixtureStaging{
			{Name: "A", Capacity: 3},
			{Name: "B"},
			{Name: "C", State: string(request.SlotClosed)},
		},
		Requests: []FixtureRequest{
			{ID: 10, Actions: submit("devel:tools", "gcc")},
			{ID: 11, Actions: submit("devel:languages:perl", "perl"), Staging: "A"},
			{ID: 12, Actions: submit("devel:tools", "make")},
			{ID: 13, State: "accepted", Actions: submit("devel:tools", "bison")},
			{ID: 14, Actions: []request.Action{{
				Type:   request.Submit,
				Source: request.Identity{Project: "home:x", Package: "foo"},
				Target: request.Identity{Project: "openSUSE:Leap", Package: "foo"},
			}}},
		},
		Devel: []FixtureDevel{
			{Package: "gcc", DevelProject: "devel:tools"},
			{Package: "perl", DevelProject: "devel:languages:perl"},
		},
		Links: []FixtureLink{{Package: "gcc7-testsuite", LinkProject: project, LinkPackage: "gcc7"}},
		Rings: []FixtureRing{{Package: "gcc", Ring: "0-Bootstrap"}},
	}
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Seed(context.Background(), fixture()))
	return s
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOpenRequests_OnlyOpenForProject(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	reqs, err := s.OpenRequests(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, request.IDs(reqs))
	assert.Equal(t, "gcc", reqs[0].Package())
	assert.Equal(t, "devel:tools", reqs[0].Primary().Source.Project)
	require.NoError(t, s.Ping(ctx))
}

func TestRequest_NotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Request(context.Background(), 999)
	assert.ErrorIs(t, err, errors.ErrRequestNotFound)

	r, err := s.Request(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, request.StateAccepted, r.State)
}

func TestSlots(t *testing.T) {
	s := setupStore(t)
	slots, err := s.Slots(context.Background(), project)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "openSUSE:Factory:Staging:A", slots[0].Name)
	assert.Equal(t, []int64{11}, slots[0].Members)
	assert.Equal(t, 3, slots[0].Capacity)
	assert.Equal(t, request.SlotClosed, slots[2].State)

	_, err = s.Slot(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrStagingNotFound)
}

func TestDirectoryLookups(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	d, ok, err := s.Devel(ctx, project, "gcc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, request.DevelRelationship{Project: "devel:tools", Package: "gcc"}, d)

	_, ok, err = s.Devel(ctx, project, "make")
	require.NoError(t, err)
	assert.False(t, ok)

	isDevel, err := s.IsDevelProject(ctx, "devel:tools", project)
	require.NoError(t, err)
	assert.True(t, isDevel)
	isDevel, err = s.IsDevelProject(ctx, "home:x", project)
	require.NoError(t, err)
	assert.False(t, isDevel)

	link, ok, err := s.Link(ctx, project, "gcc7-testsuite")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "openSUSE:Factory/gcc7", link.String())

	ring, err := s.Ring(ctx, project, "gcc")
	require.NoError(t, err)
	assert.Equal(t, "0-Bootstrap", ring)
	ring, err = s.Ring(ctx, project, "make")
	require.NoError(t, err)
	assert.Empty(t, ring)
}

func TestStage(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	slotA := request.StagingProject(project, "A")
	slotB := request.StagingProject(project, "B")

	res, err := s.Stage(ctx, slotB, []int64{10, 12}, StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, res.Staged)

	t.Run("already staged elsewhere needs move", func(t *testing.T) {
		_, err := s.Stage(ctx, slotA, []int64{10}, StageOptions{})
		assert.ErrorIs(t, err, errors.ErrAlreadyStaged)
	})

	t.Run("move with wrong from is rejected", func(t *testing.T) {
		_, err := s.Stage(ctx, slotA, []int64{10}, StageOptions{Move: true, From: slotA})
		assert.ErrorIs(t, err, errors.ErrAlreadyStaged)
	})

	t.Run("move", func(t *testing.T) {
		res, err := s.Stage(ctx, slotA, []int64{10}, StageOptions{Move: true, From: slotB})
		require.NoError(t, err)
		assert.Equal(t, []int64{10}, res.Moved)
		slot, err := s.Slot(ctx, slotA)
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 11}, slot.Members)
	})

	t.Run("same slot is unchanged", func(t *testing.T) {
		res, err := s.Stage(ctx, slotA, []int64{10}, StageOptions{})
		require.NoError(t, err)
		assert.Equal(t, []int64{10}, res.Unchanged)
	})

	t.Run("closed slot", func(t *testing.T) {
		_, err := s.Stage(ctx, request.StagingProject(project, "C"), []int64{12}, StageOptions{Move: true})
		assert.ErrorIs(t, err, errors.ErrStagingNotFound)
	})

	t.Run("failure writes nothing", func(t *testing.T) {
		_, err := s.Stage(ctx, slotA, []int64{12, 999}, StageOptions{Move: true})
		assert.ErrorIs(t, err, errors.ErrRequestNotFound)
		slot, err := s.Slot(ctx, slotB)
		require.NoError(t, err)
		assert.Equal(t, []int64{12}, slot.Members)
	})

	t.Run("closed request", func(t *testing.T) {
		_, err := s.Stage(ctx, slotA, []int64{13}, StageOptions{})
		assert.ErrorIs(t, err, errors.ErrRequestNotFound)
	})
}

func TestStage_SupersedesSamePackage(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, &Fixture{
		Project:  project,
		Requests: []FixtureRequest{{ID: 20, Actions: submit("devel:languages:perl", "perl")}},
	}))

	slotA := request.StagingProject(project, "A")
	res, err := s.Stage(ctx, slotA, []int64{20}, StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, res.Superseded)

	old, err := s.Request(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, request.StateSuperseded, old.State)

	slot, err := s.Slot(ctx, slotA)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, slot.Members)
}

func TestStage_EnforceCapacity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, &Fixture{
		Project:  project,
		Requests: []FixtureRequest{{ID: 20, Actions: submit("devel:tools", "flex")}},
	}))
	slotA := request.StagingProject(project, "A")

	_, err := s.Stage(ctx, slotA, []int64{10, 12, 20}, StageOptions{EnforceCapacity: true})
	assert.ErrorIs(t, err, &errors.CapacityExhaustion{})
	slot, err := s.Slot(ctx, slotA)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, slot.Members)

	res, err := s.Stage(ctx, slotA, []int64{10, 12}, StageOptions{EnforceCapacity: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, res.Staged)
}

func TestUnstage(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Unstage(ctx, []int64{11, 12})
	assert.ErrorIs(t, err, errors.ErrNotStaged)
	slot, err := s.Slot(ctx, request.StagingProject(project, "A"))
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, slot.Members, "failed unstage must not change anything")

	removed, err := s.Unstage(ctx, []int64{11})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{11: "openSUSE:Factory:Staging:A"}, removed)
}

func TestAcceptAndFreeze(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	slotA := request.StagingProject(project, "A")

	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.FreezeSlot(ctx, slotA, frozen, true))
	slot, err := s.Slot(ctx, slotA)
	require.NoError(t, err)
	assert.True(t, slot.Bootstrap)
	assert.Equal(t, request.SlotBuilding, slot.State)
	assert.True(t, frozen.Equal(slot.FrozenAt))

	require.NoError(t, s.SetSlotState(ctx, slotA, request.SlotAcceptable))
	accepted, err := s.AcceptSlot(ctx, slotA)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, accepted)

	slot, err = s.Slot(ctx, slotA)
	require.NoError(t, err)
	assert.Empty(t, slot.Members)
	assert.Equal(t, request.SlotOpen, slot.State)

	reqs, err := s.OpenRequests(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, request.IDs(reqs))

	assert.ErrorIs(t, s.FreezeSlot(ctx, "missing", frozen, false), errors.ErrStagingNotFound)
	assert.ErrorIs(t, s.SetSlotState(ctx, "missing", request.SlotOpen), errors.ErrStagingNotFound)
}

func TestReviewsAndVerdicts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	team := review.Group("opensuse-review-team")
	require.NoError(t, s.AddReview(ctx, 10, team, review.ReviewSourcesMessage))
	require.NoError(t, s.AddReview(ctx, 10, team, "again"))
	require.NoError(t, s.AddReview(ctx, 10, review.User("factory-repo-checker"), review.ReviewBuildMessage))

	reviews, err := s.Reviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, review.ReviewSourcesMessage, reviews[0].Message)

	require.NoError(t, s.RecordVerdict(ctx, 12, review.Decline("Only one action per request")))
	verdicts, err := s.Verdicts(ctx, 12)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, review.Declined, verdicts[0].Status)

	declined, err := s.Request(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, request.StateDeclined, declined.State)

	require.NoError(t, s.RecordVerdict(ctx, 10, review.Accept("Check script succeeded")))
	accepted, err := s.Request(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, request.StateReview, accepted.State)

	require.NoError(t, s.AddComment(ctx, 10, "ignored: waiting for upstream"))
	comments, err := s.Comments(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ignored: waiting for upstream"}, comments)
}

func TestIgnoreStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	ign := s.Ignores(project)

	entries, err := ign.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, ign.Save(ctx, map[int64]string{10: "later", 12: ""}))
	require.NoError(t, s.Ignores("openSUSE:Leap").Save(ctx, map[int64]string{14: "other"}))

	entries, err = ign.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{10: "later", 12: ""}, entries)

	require.NoError(t, ign.Save(ctx, nil))
	entries, err = ign.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	other, err := s.Ignores("openSUSE:Leap").Load(ctx)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	content := `project: openSUSE:Factory
stagings:
  - name: A
    capacity: 2
requests:
  - id: 1
    actions:
      - type: submit
        source: {project: devel:tools, package: gcc, revision: "3"}
        target: {package: gcc}
    staging: A
devel:
  - package: gcc
    devel_project: devel:tools
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	require.Len(t, f.Requests, 1)
	assert.Equal(t, "3", f.Requests[0].Actions[0].Source.Revision)

	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, f))
	require.NoError(t, s.Seed(ctx, f), "seeding twice must be idempotent")

	reqs, err := s.OpenRequests(ctx, project)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Actions, 1)

	slot, err := s.Slot(ctx, request.StagingProject(project, "A"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, slot.Members)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
