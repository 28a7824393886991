package staging

import (
	"context"

	"github.com/Iron-Ham/stagectl/internal/filter"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// BacklogGroup is the backlog of one devel project.
type BacklogGroup struct {
	DevelProject string
	Requests     []request.Request
}

// Supersede pairs a backlog request with the staged request for the same
// package it would replace.
type Supersede struct {
	Request request.Request
	Staged  request.Request
}

// Listing is the result of List.
type Listing struct {
	Groups []BacklogGroup
	// Supersedes is filled when List is asked for supersede hints.
	Supersedes []Supersede
}

// List returns the unstaged open requests grouped by devel project. Role
// and devel changes are left out; ignored requests are kept and carry their
// message. Non-empty args restrict the listing to those request ids and
// package names. With supersede set, backlog requests for a package that
// is already staged are reported as well.
func (s *Service) List(ctx context.Context, args []string, supersede bool) (*Listing, error) {
	open, err := s.catalog.OpenRequests(ctx)
	if err != nil {
		return nil, err
	}

	var backlog []request.Request
	staged := map[string]request.Request{}
	for _, r := range open {
		if r.IsStaged() {
			staged[r.Package()] = r
			continue
		}
		backlog = append(backlog, r)
	}
	preds := []filter.Predicate{filter.MustParse(filter.ExcludeRoleAndDevelChanges)}
	if len(args) > 0 {
		preds = append(preds, filter.Requests(args))
	}
	backlog = filter.Filter(backlog, preds...)

	listing := &Listing{}
	for _, g := range filter.GroupBy(backlog, []filter.Key{{Field: filter.FieldDevelProject}}) {
		listing.Groups = append(listing.Groups, BacklogGroup{DevelProject: g.Parts[0], Requests: g.Requests})
	}

	if supersede {
		for _, r := range backlog {
			if old, ok := staged[r.Package()]; ok && old.ID != r.ID {
				listing.Supersedes = append(listing.Supersedes, Supersede{Request: r, Staged: old})
			}
		}
	}
	return listing, nil
}
