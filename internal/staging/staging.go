// Package staging implements the stagectl subcommands on top of the catalog,
// the planner and the committer. Every mutating operation runs inside the
// exclusivity session; read-only listing does not take the lock.
package staging

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Iron-Ham/stagectl/internal/catalog"
	"github.com/Iron-Ham/stagectl/internal/logging"
	"github.com/Iron-Ham/stagectl/internal/planner"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
	"github.com/Iron-Ham/stagectl/internal/store"
	"github.com/Iron-Ham/stagectl/internal/validator"
)

// Backend applies staging mutations. *store.Store implements it.
type Backend interface {
	review.Tracker
	Stage(ctx context.Context, slot string, ids []int64, opts store.StageOptions) (store.StageResult, error)
	Unstage(ctx context.Context, ids []int64) (map[int64]string, error)
	AcceptSlot(ctx context.Context, slot string) ([]int64, error)
	FreezeSlot(ctx context.Context, slot string, at time.Time, bootstrap bool) error
	AddComment(ctx context.Context, requestID int64, body string) error
	Seed(ctx context.Context, f *store.Fixture) error
}

// Runner serializes mutations across invocations. *exclusive.Session
// implements it.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// AlwaysConfirm answers yes without asking.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Config wires a Service.
type Config struct {
	Catalog *catalog.Catalog
	Backend Backend
	Session Runner
	// Validator is required by Validate only.
	Validator *validator.Validator
	// Amender edits proposals in interactive select. Nil disables
	// interactive mode.
	Amender planner.Amender
	// Confirm approves proposals before commit. Nil approves everything.
	Confirm       Confirmer
	BootstrapRing string
	// Out receives progress lines.
	Out    io.Writer
	Logger *logging.Logger
	// Now is replaced in tests.
	Now func() time.Time
}

// Service runs staging commands for one project.
type Service struct {
	catalog       *catalog.Catalog
	backend       Backend
	session       Runner
	validator     *validator.Validator
	amender       planner.Amender
	confirm       Confirmer
	bootstrapRing string
	out           io.Writer
	logger        *logging.Logger
	now           func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{
		catalog:       cfg.Catalog,
		backend:       cfg.Backend,
		session:       cfg.Session,
		validator:     cfg.Validator,
		amender:       cfg.Amender,
		confirm:       cfg.Confirm,
		bootstrapRing: cfg.BootstrapRing,
		out:           cfg.Out,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if s.confirm == nil {
		s.confirm = AlwaysConfirm
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Project returns the target project.
func (s *Service) Project() string { return s.catalog.Project() }

func (s *Service) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

// locked runs fn under the exclusivity session and drops cached catalog
// state afterwards.
func (s *Service) locked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	logger := s.logger.WithCommand(name)
	err := s.session.Run(ctx, func(ctx context.Context) error {
		defer s.catalog.Invalidate()
		return fn(ctx)
	})
	if err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	logger.Debug("command finished")
	return nil
}

// resolve turns command-line arguments into requests, keeping argument
// order and dropping duplicates.
func (s *Service) resolve(ctx context.Context, args []string) ([]request.Request, error) {
	seen := map[int64]bool{}
	var out []request.Request
	for _, arg := range args {
		reqs, err := s.catalog.Resolve(ctx, arg)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}
