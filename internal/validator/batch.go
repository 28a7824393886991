package validator

import (
	"context"
	"slices"

	"github.com/sourcegraph/conc/iter"

	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
)

// Outcome is the result of validating one request in a batch. Err is set
// when the request could not be decided.
type Outcome struct {
	Request request.Request
	Verdict review.Verdict
	Err     error
}

// ValidateAll validates reqs concurrently and returns one outcome per
// request, ordered by request id regardless of completion order.
func (v *Validator) ValidateAll(ctx context.Context, reqs []request.Request) []Outcome {
	sorted := slices.Clone(reqs)
	request.SortByID(sorted)

	mapper := iter.Mapper[request.Request, Outcome]{MaxGoroutines: v.parallelism}
	return mapper.Map(sorted, func(req *request.Request) Outcome {
		if err := ctx.Err(); err != nil {
			return Outcome{Request: *req, Err: err}
		}
		verdict, err := v.Validate(ctx, *req)
		return Outcome{Request: *req, Verdict: verdict, Err: err}
	})
}

// Summary counts batch outcomes.
type Summary struct {
	Accepted int
	Declined int
	Pending  int
}

// Record applies outcomes to tracker in order. Undecided outcomes are
// skipped and counted as pending; the first tracker failure stops the run.
func Record(ctx context.Context, tracker review.Tracker, outcomes []Outcome) (Summary, error) {
	var s Summary
	for _, o := range outcomes {
		if o.Err != nil {
			s.Pending++
			continue
		}
		if err := review.Apply(ctx, tracker, o.Request.ID, o.Verdict); err != nil {
			return s, err
		}
		if o.Verdict.IsAccepted() {
			s.Accepted++
		} else {
			s.Declined++
		}
	}
	return s, nil
}
