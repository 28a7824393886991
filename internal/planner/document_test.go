package planner

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/stagectl/internal/errors"
)

func sample() *Proposal {
	return &Proposal{
		Groups: []Assignment{
			{Group: "YaST:Head", Staging: "A", Requests: []Entry{{ID: 104, Package: "yast-network"}, {ID: 105, Package: "yast-core"}}},
			{Group: "devel:gcc", Staging: "B", Requests: []Entry{{ID: 102, Package: "gcc"}}},
		},
		Considered: []string{"B", "A", "C"},
		Remaining:  []string{"C"},
	}
}

func TestRender(t *testing.T) {
	out, err := Render(sample(), true)
	require.NoError(t, err)

	want := `YaST:Head:
  staging: A
  requests:
    104: yast-network
    105: yast-core
devel:gcc:
  staging: B
  requests:
    102: gcc

# move requests between stagings or comment/remove them
# change the target staging for a group
# stagings
# - considered: A, B, C
# - remaining: C
`
	assert.Equal(t, want, string(out))
}

func TestRender_NoHints(t *testing.T) {
	out, err := Render(sample(), false)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "#")
}

func TestParse_RoundTrip(t *testing.T) {
	out, err := Render(sample(), true)
	require.NoError(t, err)

	p, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, sample().Groups, p.Groups)
}

func TestParse_Amended(t *testing.T) {
	doc := `YaST:Head:
  staging: C
  requests:
    105: yast-core
#    104: yast-network
devel:gcc:
  staging: B
  requests:
#    102: gcc
`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, p.Groups, 2)
	assert.Equal(t, "C", p.Groups[0].Staging)
	assert.Equal(t, []int64{105}, p.Groups[0].IDs())
	assert.Empty(t, p.Groups[1].Requests)
	assert.True(t, (&Proposal{Groups: p.Groups[1:]}).Empty())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("# everything removed\n"))
	assert.ErrorIs(t, err, errors.ErrEmptyProposal)

	_, err = Parse([]byte("group: [unbalanced"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = Parse([]byte("g:\n  requests:\n    1: a\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func fakeEditor(t *testing.T, script string) {
	t.Helper()
	orig := execCommandContext
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		// The proposal path is always the last argument.
		return exec.CommandContext(ctx, "/bin/sh", "-c", script, "editor", args[len(args)-1])
	}
	t.Cleanup(func() { execCommandContext = orig })
}

func TestEditorAmender(t *testing.T) {
	t.Setenv("EDITOR", "vim")
	doc, err := Render(sample(), true)
	require.NoError(t, err)

	t.Run("edited", func(t *testing.T) {
		fakeEditor(t, `sed -i 's/staging: B/staging: C/' "$1"`)
		out, err := (&EditorAmender{}).Amend(context.Background(), doc)
		require.NoError(t, err)

		p, err := Parse(out)
		require.NoError(t, err)
		assert.Equal(t, "C", p.Groups[1].Staging)
	})

	t.Run("emptied", func(t *testing.T) {
		fakeEditor(t, `: > "$1"`)
		_, err := (&EditorAmender{}).Amend(context.Background(), doc)
		assert.ErrorIs(t, err, errors.ErrProposalAborted)
	})

	t.Run("editor failed", func(t *testing.T) {
		fakeEditor(t, `exit 1`)
		_, err := (&EditorAmender{}).Amend(context.Background(), doc)
		assert.ErrorIs(t, err, errors.ErrProposalAborted)
	})

	t.Run("detached editor", func(t *testing.T) {
		fakeEditor(t, `(sleep 0.2; echo "extra: {staging: A}" >> "$1") > /dev/null 2>&1 &`)
		out, err := (&EditorAmender{WaitForWrite: true}).Amend(context.Background(), doc)
		require.NoError(t, err)
		assert.Contains(t, string(out), "extra")
	})
}

func TestEditorAmender_Editor(t *testing.T) {
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")
	assert.Equal(t, "xdg-open", (&EditorAmender{}).Editor())

	t.Setenv("VISUAL", "code --wait")
	assert.Equal(t, "code --wait", (&EditorAmender{}).Editor())

	t.Setenv("EDITOR", "nano")
	assert.Equal(t, "nano", (&EditorAmender{}).Editor())
	assert.Equal(t, "emacs", (&EditorAmender{Command: "emacs"}).Editor())
}
