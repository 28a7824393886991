package staging

import (
	"context"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/store"
	"github.com/Iron-Ham/stagectl/internal/validator"
)

// ValidateResult reports a validation run.
type ValidateResult struct {
	Outcomes []validator.Outcome
	Summary  validator.Summary
}

// Validate runs admission on the given requests, or on every open request
// when args is empty, and records verdicts and escalations in request id
// order. Requests that could not be decided are logged and left pending.
func (s *Service) Validate(ctx context.Context, args []string) (*ValidateResult, error) {
	if s.validator == nil {
		return nil, errors.NewValidationError("no validator configured")
	}
	var result *ValidateResult
	err := s.locked(ctx, "validate", func(ctx context.Context) error {
		var reqs []request.Request
		var err error
		if len(args) == 0 {
			reqs, err = s.catalog.OpenRequests(ctx)
		} else {
			reqs, err = s.resolve(ctx, args)
		}
		if err != nil {
			return err
		}

		outcomes := s.validator.ValidateAll(ctx, reqs)
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				s.logger.WithRequest(o.Request.ID).Warn("request left pending", "error", o.Err)
				s.printf("%d: pending: %v", o.Request.ID, o.Err)
			default:
				s.printf("%d: %s: %s", o.Request.ID, o.Verdict.Status, o.Verdict.Message)
			}
		}

		summary, err := validator.Record(ctx, s.backend, outcomes)
		result = &ValidateResult{Outcomes: outcomes, Summary: summary}
		if err != nil {
			return err
		}
		s.printf("Accepted %d, declined %d, pending %d", summary.Accepted, summary.Declined, summary.Pending)
		return nil
	})
	return result, err
}

// Seed loads a YAML fixture into the catalog database.
func (s *Service) Seed(ctx context.Context, path string) error {
	f, err := store.LoadFixture(path)
	if err != nil {
		return err
	}
	if f.Project == "" {
		f.Project = s.Project()
	}
	return s.locked(ctx, "seed", func(ctx context.Context) error {
		if err := s.backend.Seed(ctx, f); err != nil {
			return err
		}
		s.printf("Seeded %d requests and %d stagings into %s", len(f.Requests), len(f.Stagings), f.Project)
		return nil
	})
}
