// Package planner assigns groups of requests to staging slots and produces
// a proposal that can be amended by a human before it is committed.
package planner

import (
	"fmt"
	"slices"
	"sort"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/filter"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// DefaultGroup names the group of requests whose group key is empty. The
// parentheses keep it apart from any project, package or ring name.
const DefaultGroup = "(ungrouped)"

// Entry is a request placed in a proposal.
type Entry struct {
	ID      int64
	Package string
}

// Assignment is one group of a proposal and its target staging.
type Assignment struct {
	Group string
	// Staging is the short slot name.
	Staging  string
	Requests []Entry
}

// IDs returns the request ids of the assignment in order.
func (a Assignment) IDs() []int64 {
	ids := make([]int64, len(a.Requests))
	for i, e := range a.Requests {
		ids[i] = e.ID
	}
	return ids
}

// Unassigned is a group for which no slot had room.
type Unassigned struct {
	Group    string
	Requests []Entry
	Err      *errors.CapacityExhaustion
}

// Proposal maps groups to staging slots.
type Proposal struct {
	// Groups are ordered by group name.
	Groups       []Assignment
	Unassignable []Unassigned
	// Considered lists the slots the planner could choose from and
	// Remaining the empty ones it left unused.
	Considered []string
	Remaining  []string
}

// Empty reports whether the proposal assigns no requests.
func (p *Proposal) Empty() bool {
	for _, g := range p.Groups {
		if len(g.Requests) > 0 {
			return false
		}
	}
	return true
}

// Input is everything the planner needs to build a proposal.
type Input struct {
	Project string
	Groups  []filter.Group
	// Keys are the grouping expressions Groups were built with. Staged
	// requests are grouped with the same keys to find compatible slots.
	Keys   []filter.Key
	Slots  []request.StagingSlot
	Staged []request.Request
	// Stagings restricts the candidate slots to these short names.
	Stagings      []string
	BootstrapRing string
}

type candidate struct {
	slot    request.StagingSlot
	short   string
	planned int
	keys    map[string]bool
}

func (c *candidate) fits(n int) bool { return c.slot.Fits(c.planned + n) }

func (c *candidate) empty() bool { return c.slot.Occupancy()+c.planned == 0 }

// Propose assigns every group to a slot. Groups are processed in order and
// each goes to the first of: a slot already holding requests with the same
// group key, an empty slot. Bootstrap slots are used only when no other
// slot fits, or exclusively for groups carrying the bootstrap ring. Ties
// are broken by slot name. Groups that fit nowhere are reported as
// unassignable.
func Propose(in Input) (*Proposal, error) {
	cands, err := candidates(in)
	if err != nil {
		return nil, err
	}

	p := &Proposal{}
	for _, c := range cands {
		p.Considered = append(p.Considered, c.short)
	}

	groups := slices.Clone(in.Groups)
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Key < groups[b].Key })

	named := map[string]string{}
	for _, g := range groups {
		if len(g.Requests) == 0 {
			continue
		}
		name := groupName(g.Key)
		if prev, ok := named[name]; ok && prev != g.Key {
			return nil, errors.NewValidationError("duplicate group name").WithField("group").WithValue(name)
		}
		named[name] = g.Key
		reqs := slices.Clone(g.Requests)
		request.SortByID(reqs)
		entries := toEntries(reqs)

		target := pick(cands, g.Key, len(reqs), in.BootstrapRing != "" && hasRing(reqs, in.BootstrapRing))
		if target == nil {
			p.Unassignable = append(p.Unassignable, Unassigned{
				Group:    name,
				Requests: entries,
				Err:      errors.NewCapacityExhaustion(name, len(reqs), "no staging with room"),
			})
			continue
		}
		target.planned += len(reqs)
		target.keys[g.Key] = true
		p.Groups = append(p.Groups, Assignment{Group: name, Staging: target.short, Requests: entries})
	}

	sort.SliceStable(p.Groups, func(a, b int) bool { return p.Groups[a].Group < p.Groups[b].Group })
	for _, c := range cands {
		if c.empty() {
			p.Remaining = append(p.Remaining, c.short)
		}
	}
	return p, nil
}

func candidates(in Input) ([]*candidate, error) {
	keyOf := make(map[int64]string, len(in.Staged))
	for _, g := range filter.GroupBy(in.Staged, in.Keys) {
		for _, r := range g.Requests {
			keyOf[r.ID] = g.Key
		}
	}

	byShort := make(map[string]request.StagingSlot, len(in.Slots))
	for _, s := range in.Slots {
		byShort[request.ShortName(in.Project, s.Name)] = s
	}

	var chosen []request.StagingSlot
	if len(in.Stagings) > 0 {
		for _, name := range in.Stagings {
			short := request.ShortName(in.Project, name)
			s, ok := byShort[short]
			if !ok {
				return nil, errors.NewNotFoundError("staging", name).WithCause(errors.ErrStagingNotFound)
			}
			if s.IsClosed() {
				return nil, errors.Wrapf(errors.ErrStagingNotFound, "staging %s is closed", name)
			}
			chosen = append(chosen, s)
		}
	} else {
		for _, s := range in.Slots {
			if !s.IsClosed() {
				chosen = append(chosen, s)
			}
		}
	}

	cands := make([]*candidate, 0, len(chosen))
	seen := map[string]bool{}
	for _, s := range chosen {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		c := &candidate{slot: s, short: request.ShortName(in.Project, s.Name), keys: map[string]bool{}}
		for _, id := range s.Members {
			if k, ok := keyOf[id]; ok {
				c.keys[k] = true
			}
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].short < cands[b].short })
	return cands, nil
}

func pick(cands []*candidate, key string, n int, bootstrapGroup bool) *candidate {
	compatible := func(bootstrap bool) *candidate {
		if key == "" {
			return nil
		}
		for _, c := range cands {
			if c.slot.Bootstrap == bootstrap && !c.empty() && c.keys[key] && c.fits(n) {
				return c
			}
		}
		return nil
	}
	empty := func(bootstrap bool) *candidate {
		for _, c := range cands {
			if c.slot.Bootstrap == bootstrap && c.empty() && c.fits(n) {
				return c
			}
		}
		return nil
	}

	tiers := []func(bool) *candidate{compatible, empty}
	order := []bool{false, true}
	if bootstrapGroup {
		order = []bool{true}
	}
	for _, bootstrap := range order {
		for _, tier := range tiers {
			if c := tier(bootstrap); c != nil {
				return c
			}
		}
	}
	return nil
}

func hasRing(reqs []request.Request, ring string) bool {
	for _, r := range reqs {
		if r.Ring == ring {
			return true
		}
	}
	return false
}

func groupName(key string) string {
	if key == "" {
		return DefaultGroup
	}
	return key
}

func toEntries(reqs []request.Request) []Entry {
	entries := make([]Entry, len(reqs))
	for i, r := range reqs {
		entries[i] = Entry{ID: r.ID, Package: r.Package()}
	}
	return entries
}

// Summary describes the proposal in one line for logs.
func (p *Proposal) Summary() string {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Requests)
	}
	return fmt.Sprintf("%d requests in %d groups, %d unassignable", n, len(p.Groups), len(p.Unassignable))
}
