package staging

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// Unselect removes requests from their staging slots, returning them to the
// backlog. Package arguments match only the staged requests for that
// package. It returns the short slot name each request left.
func (s *Service) Unselect(ctx context.Context, args []string) (map[int64]string, error) {
	var removed map[int64]string
	err := s.locked(ctx, "unselect", func(ctx context.Context) error {
		reqs, err := s.resolve(ctx, args)
		if err != nil {
			return err
		}
		var ids []int64
		for _, r := range reqs {
			if r.IsStaged() {
				ids = append(ids, r.ID)
			}
		}
		if len(ids) == 0 {
			return errors.Wrapf(errors.ErrNotStaged, "none of %v", args)
		}

		left, err := s.backend.Unstage(ctx, ids)
		if err != nil {
			return err
		}
		removed = make(map[int64]string, len(left))
		for _, id := range ids {
			short := s.catalog.ShortName(left[id])
			removed[id] = short
			s.printf("Unselecting %d from %s", id, short)
		}
		return nil
	})
	return removed, err
}

// Accept promotes every request of the named slots and empties them. Slots
// must be acceptable unless force is set; with no names every acceptable
// slot is accepted. All slots are checked before any is accepted. It
// returns the accepted request ids per short slot name.
func (s *Service) Accept(ctx context.Context, names []string, force bool) (map[string][]int64, error) {
	accepted := map[string][]int64{}
	err := s.locked(ctx, "accept", func(ctx context.Context) error {
		slots, err := s.acceptable(ctx, names, force)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			s.printf("No acceptable stagings")
			return nil
		}
		for _, slot := range slots {
			short := s.catalog.ShortName(slot.Name)
			ids, err := s.backend.AcceptSlot(ctx, slot.Name)
			if err != nil {
				return fmt.Errorf("accept %s: %w", short, err)
			}
			accepted[short] = ids
			s.printf("Accepted %s: %d requests", short, len(ids))
		}
		return nil
	})
	return accepted, err
}

func (s *Service) acceptable(ctx context.Context, names []string, force bool) ([]request.StagingSlot, error) {
	if len(names) == 0 {
		all, err := s.catalog.Slots(ctx)
		if err != nil {
			return nil, err
		}
		var out []request.StagingSlot
		for _, slot := range all {
			if slot.State == request.SlotAcceptable {
				out = append(out, slot)
			}
		}
		return out, nil
	}

	out := make([]request.StagingSlot, 0, len(names))
	for _, name := range names {
		slot, err := s.catalog.Slot(ctx, name)
		if err != nil {
			return nil, err
		}
		if !force && slot.State != request.SlotAcceptable {
			return nil, errors.Wrapf(errors.ErrNotAcceptable, "staging %s is %s", name, slot.State)
		}
		out = append(out, slot)
	}
	return out, nil
}

// Freeze stamps the freeze time of each named slot and moves it to
// building. bootstrap records whether the slot was seeded from the
// bootstrap baseline.
func (s *Service) Freeze(ctx context.Context, names []string, bootstrap bool) error {
	return s.locked(ctx, "freeze", func(ctx context.Context) error {
		for _, name := range names {
			slot, err := s.catalog.Slot(ctx, name)
			if err != nil {
				return err
			}
			s.printf("Freezing %s", slot.Name)
			if err := s.backend.FreezeSlot(ctx, slot.Name, s.now(), bootstrap); err != nil {
				return err
			}
		}
		return nil
	})
}

// FrozenAge reports how long ago each named slot was last frozen.
func (s *Service) FrozenAge(ctx context.Context, names []string) (map[string]time.Duration, error) {
	ages := make(map[string]time.Duration, len(names))
	for _, name := range names {
		slot, err := s.catalog.Slot(ctx, name)
		if err != nil {
			return nil, err
		}
		if slot.FrozenAt.IsZero() {
			s.printf("%s has never been frozen", slot.Name)
			continue
		}
		age := s.now().Sub(slot.FrozenAt)
		ages[name] = age
		s.printf("%s last frozen %0.1f days ago", slot.Name, age.Hours()/24)
	}
	return ages, nil
}
