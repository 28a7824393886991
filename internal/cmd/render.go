package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/staging"
)

var promptStyle = lipgloss.NewStyle().Bold(true)

// styles renders for one writer; colors are dropped when w is not a
// terminal.
type styles struct {
	header  lipgloss.Style
	id      lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		id:      r.NewStyle().Foreground(lipgloss.Color("10")),
		muted:   r.NewStyle().Faint(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// renderListing writes the backlog grouped by devel project.
func renderListing(w io.Writer, project string, l *staging.Listing) {
	st := newStyles(w)
	if len(l.Groups) == 0 {
		fmt.Fprintln(w, st.muted.Render("No requests in the backlog"))
	}
	for _, g := range l.Groups {
		fmt.Fprintln(w, st.header.Render(g.DevelProject))
		for _, r := range g.Requests {
			fmt.Fprintln(w, "  "+requestLine(st, r))
		}
	}

	if len(l.Supersedes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.warning.Render("Superseding staged requests:"))
	for _, s := range l.Supersedes {
		fmt.Fprintf(w, "  %s %s supersedes %d in %s\n",
			st.id.Render(fmt.Sprint(s.Request.ID)), s.Request.Package(), s.Staged.ID,
			request.ShortName(project, s.Staged.Staging))
	}
}

func requestLine(st styles, r request.Request) string {
	parts := []string{st.id.Render(fmt.Sprint(r.ID)), r.Package()}
	if r.Type() != request.Submit {
		parts = append(parts, "("+string(r.Type())+")")
	}
	if r.Ring != "" {
		parts = append(parts, st.muted.Render("["+r.Ring+"]"))
	}
	if r.Ignored {
		note := "ignored"
		if r.IgnoreMessage != "" {
			note += ": " + r.IgnoreMessage
		}
		parts = append(parts, st.muted.Render("("+note+")"))
	}
	return strings.Join(parts, " ")
}
