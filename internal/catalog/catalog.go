// Package catalog is the queryable view of the open requests of a project,
// enriched with derived attributes, together with its staging slots and
// ignore list.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/ignore"
	"github.com/Iron-Ham/stagectl/internal/logging"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// ErrNotLocked is returned by ignore-list mutations made outside the
// exclusivity session.
var ErrNotLocked = errors.New("exclusivity session not held")

// Backend is the source of request, slot and package data.
type Backend interface {
	OpenRequests(ctx context.Context, project string) ([]request.Request, error)
	Request(ctx context.Context, id int64) (request.Request, error)
	Slots(ctx context.Context, project string) ([]request.StagingSlot, error)
	Devel(ctx context.Context, project, pkg string) (request.DevelRelationship, bool, error)
	Ring(ctx context.Context, project, pkg string) (string, error)
}

// Guard reports whether the exclusivity session is held in ctx.
type Guard interface {
	Held(ctx context.Context) bool
}

// Config wires a Catalog.
type Config struct {
	Project string
	Backend Backend
	Ignores *ignore.List
	// Guard, when set, is checked before every ignore-list mutation.
	Guard  Guard
	Logger *logging.Logger
}

// Catalog caches backend reads for the lifetime of one invocation.
type Catalog struct {
	project string
	backend Backend
	ignores *ignore.List
	guard   Guard
	logger  *logging.Logger

	mu       sync.Mutex
	requests []request.Request
	slots    []request.StagingSlot
	loaded   bool
}

// New creates a Catalog.
func New(cfg Config) *Catalog {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Catalog{
		project: cfg.Project,
		backend: cfg.Backend,
		ignores: cfg.Ignores,
		guard:   cfg.Guard,
		logger:  logger,
	}
}

// Project returns the target project.
func (c *Catalog) Project() string { return c.project }

// Invalidate drops cached requests and slots.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
	c.slots = nil
	c.loaded = false
}

func (c *Catalog) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	slots, err := c.backend.Slots(ctx, c.project)
	if err != nil {
		return errors.NewInfrastructureFailure("load staging slots", err)
	}
	reqs, err := c.backend.OpenRequests(ctx, c.project)
	if err != nil {
		return errors.NewInfrastructureFailure("load open requests", err)
	}

	staged := make(map[int64]string)
	for _, s := range slots {
		if s.IsClosed() {
			continue
		}
		for _, id := range s.Members {
			staged[id] = s.Name
		}
	}
	for i := range reqs {
		if err := c.enrich(ctx, &reqs[i], staged); err != nil {
			return err
		}
	}
	request.SortByID(reqs)

	c.requests = reqs
	c.slots = slots
	c.loaded = true
	c.logger.Debug("catalog loaded", "requests", len(reqs), "slots", len(slots))
	return nil
}

// enrich fills the derived attributes. Without a devel relationship the
// source of the primary action stands in for the devel package.
func (c *Catalog) enrich(ctx context.Context, r *request.Request, staged map[int64]string) error {
	a := r.Primary()
	pkg := r.Package()

	rel, ok, err := c.backend.Devel(ctx, a.Target.Project, pkg)
	if err != nil {
		return errors.NewInfrastructureFailure("devel lookup", err).WithRequestID(r.ID)
	}
	if ok {
		r.DevelProject, r.DevelPackage = rel.Project, rel.Package
	} else {
		r.DevelProject, r.DevelPackage = a.Source.Project, a.Source.Package
	}

	if r.Ring, err = c.backend.Ring(ctx, a.Target.Project, pkg); err != nil {
		return errors.NewInfrastructureFailure("ring lookup", err).WithRequestID(r.ID)
	}

	if c.ignores != nil {
		msg, ignored, err := c.ignores.Lookup(ctx, r.ID)
		if err != nil {
			return errors.NewInfrastructureFailure("load ignore list", err)
		}
		r.Ignored, r.IgnoreMessage = ignored, msg
	}
	r.Staging = staged[r.ID]
	return nil
}

// OpenRequests returns every open request targeting the project, ordered by
// id.
func (c *Catalog) OpenRequests(ctx context.Context) ([]request.Request, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]request.Request, len(c.requests))
	copy(out, c.requests)
	return out, nil
}

// Backlog returns the open requests not assigned to any staging slot.
func (c *Catalog) Backlog(ctx context.Context) ([]request.Request, error) {
	reqs, err := c.OpenRequests(ctx)
	if err != nil {
		return nil, err
	}
	var out []request.Request
	for _, r := range reqs {
		if !r.IsStaged() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Request returns a request by id. Open requests come back enriched.
func (c *Catalog) Request(ctx context.Context, id int64) (request.Request, error) {
	reqs, err := c.OpenRequests(ctx)
	if err != nil {
		return request.Request{}, err
	}
	for _, r := range reqs {
		if r.ID == id {
			return r, nil
		}
	}
	return c.backend.Request(ctx, id)
}

// FindByPackage returns the open requests targeting pkg.
func (c *Catalog) FindByPackage(ctx context.Context, pkg string) ([]request.Request, error) {
	reqs, err := c.OpenRequests(ctx)
	if err != nil {
		return nil, err
	}
	var out []request.Request
	for _, r := range reqs {
		if r.Package() == pkg {
			out = append(out, r)
		}
	}
	return out, nil
}

// Resolve turns a command-line argument, either a request id or a package
// name, into requests.
func (c *Catalog) Resolve(ctx context.Context, arg string) ([]request.Request, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		r, err := c.Request(ctx, id)
		if err != nil {
			return nil, err
		}
		return []request.Request{r}, nil
	}
	reqs, err := c.FindByPackage(ctx, arg)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, errors.NewNotFoundError("request for package", arg).WithCause(errors.ErrRequestNotFound)
	}
	return reqs, nil
}

// Slots returns the staging slots of the project ordered by name.
func (c *Catalog) Slots(ctx context.Context) ([]request.StagingSlot, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]request.StagingSlot, len(c.slots))
	copy(out, c.slots)
	return out, nil
}

// Slot looks a slot up by short or full name.
func (c *Catalog) Slot(ctx context.Context, name string) (request.StagingSlot, error) {
	slots, err := c.Slots(ctx)
	if err != nil {
		return request.StagingSlot{}, err
	}
	full := request.StagingProject(c.project, name)
	for _, s := range slots {
		if s.Name == full {
			return s, nil
		}
	}
	return request.StagingSlot{}, errors.NewNotFoundError("staging", name).WithCause(errors.ErrStagingNotFound)
}

// IsSlot reports whether name refers to an existing slot.
func (c *Catalog) IsSlot(ctx context.Context, name string) (bool, error) {
	_, err := c.Slot(ctx, name)
	if errors.Is(err, errors.ErrStagingNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ShortName returns the short form of a full slot name.
func (c *Catalog) ShortName(name string) string {
	return request.ShortName(c.project, name)
}

func (c *Catalog) checkGuard(ctx context.Context) error {
	if c.ignores == nil {
		return fmt.Errorf("no ignore list configured")
	}
	if c.guard != nil && !c.guard.Held(ctx) {
		return ErrNotLocked
	}
	return nil
}
