package staging

import (
	"context"
	"strconv"

	"github.com/Iron-Ham/stagectl/internal/errors"
)

// Ignore hides requests from list and from proposals until they are
// unignored. Each argument must name an existing request targeting the
// project; others are reported and skipped. A message, when given, is also
// recorded as a comment on the request. It returns the number of requests
// newly ignored.
func (s *Service) Ignore(ctx context.Context, args []string, message string) (int, error) {
	added := 0
	err := s.locked(ctx, "ignore", func(ctx context.Context) error {
		for _, arg := range args {
			s.printf("Processing %s", arg)
			id, reason, err := s.checkIgnorable(ctx, arg)
			if err != nil {
				return err
			}
			if reason != "" {
				s.printf("- %s", reason)
				continue
			}
			if message != "" {
				if err := s.backend.AddComment(ctx, id, message); err != nil {
					return err
				}
			}
			ok, err := s.catalog.SetIgnored(ctx, id, message)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}

		if added == 0 {
			s.printf("No new requests to ignore")
			return nil
		}
		s.printf("Ignoring %d requests", added)
		return s.catalog.SaveIgnores(ctx)
	})
	return added, err
}

// checkIgnorable returns the request id for arg, or a reason why it cannot
// be ignored.
func (s *Service) checkIgnorable(ctx context.Context, arg string) (int64, string, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, "not a request id", nil
	}
	r, err := s.catalog.Request(ctx, id)
	if errors.Is(err, errors.ErrRequestNotFound) {
		return 0, "not found", nil
	}
	if err != nil {
		return 0, "", err
	}
	if r.Project() != s.Project() {
		return 0, "not targeting " + s.Project(), nil
	}
	return id, "", nil
}

// Unignore removes requests from the ignore list. The single argument
// "all" clears the list. It returns the number of entries removed.
func (s *Service) Unignore(ctx context.Context, args []string) (int, error) {
	removed := 0
	err := s.locked(ctx, "unignore", func(ctx context.Context) error {
		if len(args) == 1 && args[0] == "all" {
			n, err := s.catalog.UnignoreAll(ctx)
			if err != nil {
				return err
			}
			removed = n
		} else {
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return errors.NewValidationError("not a request id").WithField("request").WithValue(arg)
				}
				ok, err := s.catalog.Unignore(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					s.printf("%d is not ignored", id)
					continue
				}
				s.printf("Unignoring %d", id)
				removed++
			}
		}

		if removed == 0 {
			s.printf("No requests to unignore")
			return nil
		}
		s.printf("Unignored %d requests", removed)
		return s.catalog.SaveIgnores(ctx)
	})
	return removed, err
}
