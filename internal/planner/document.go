package planner

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/stagectl/internal/errors"
)

type groupDoc struct {
	Staging  string           `yaml:"staging"`
	Requests map[int64]string `yaml:"requests"`
}

// Render serializes the proposal as a YAML mapping of group to staging and
// requests. With hints set, comment lines describing how to edit the
// document and which slots were considered are appended.
func Render(p *Proposal, hints bool) ([]byte, error) {
	doc := make(map[string]groupDoc, len(p.Groups))
	for _, g := range p.Groups {
		reqs := make(map[int64]string, len(g.Requests))
		for _, e := range g.Requests {
			reqs[e.ID] = e.Package
		}
		doc[g.Group] = groupDoc{Staging: g.Staging, Requests: reqs}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}

	if hints {
		buf.WriteString("\n")
		buf.WriteString("# move requests between stagings or comment/remove them\n")
		buf.WriteString("# change the target staging for a group\n")
		buf.WriteString("# stagings\n")
		fmt.Fprintf(&buf, "# - considered: %s\n", strings.Join(sorted(p.Considered), ", "))
		fmt.Fprintf(&buf, "# - remaining: %s\n", strings.Join(sorted(p.Remaining), ", "))
	}
	return buf.Bytes(), nil
}

// Parse reads a proposal document produced by Render, possibly edited. A
// document without any group yields errors.ErrEmptyProposal. Slot names
// and capacities are not checked.
func Parse(data []byte) (*Proposal, error) {
	var doc map[string]*groupDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewValidationError("malformed proposal: " + err.Error()).WithField("proposal")
	}
	if len(doc) == 0 {
		return nil, errors.ErrEmptyProposal
	}

	p := &Proposal{}
	for name, g := range doc {
		if g == nil {
			g = &groupDoc{}
		}
		staging := strings.TrimSpace(g.Staging)
		if staging == "" && len(g.Requests) > 0 {
			return nil, errors.NewValidationError("group has no staging").WithField("proposal").WithValue(name)
		}
		a := Assignment{Group: name, Staging: staging}
		for id, pkg := range g.Requests {
			a.Requests = append(a.Requests, Entry{ID: id, Package: pkg})
		}
		sort.Slice(a.Requests, func(i, j int) bool { return a.Requests[i].ID < a.Requests[j].ID })
		p.Groups = append(p.Groups, a)
	}
	sort.Slice(p.Groups, func(i, j int) bool { return p.Groups[i].Group < p.Groups[j].Group })
	return p, nil
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
