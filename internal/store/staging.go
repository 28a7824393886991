package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// StageOptions controls how requests already staged elsewhere are handled.
type StageOptions struct {
	// Move allows taking a request out of another slot.
	Move bool
	// From restricts Move to requests currently in this slot.
	From string
	// EnforceCapacity fails the call when the slot would end up holding
	// more requests than its capacity.
	EnforceCapacity bool
}

// StageResult reports what Stage changed.
type StageResult struct {
	Staged     []int64
	Moved      []int64
	Superseded []int64
	// Unchanged lists requests already in the target slot.
	Unchanged []int64
}

// Stage places ids into slot in a single transaction. A staged request for
// the same package already in slot is superseded by the incoming one.
// Nothing is written when any request fails.
func (s *Store) Stage(ctx context.Context, slot string, ids []int64, opts StageOptions) (StageResult, error) {
	var result StageResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = StageResult{}
		target, err := slotTx(ctx, tx, slot)
		if err != nil {
			return err
		}
		if target.IsClosed() {
			return errors.Wrapf(errors.ErrStagingNotFound, "staging %s is closed", slot)
		}

		for _, id := range ids {
			if err := stageOne(ctx, tx, slot, id, opts, &result); err != nil {
				return err
			}
		}
		if opts.EnforceCapacity && !target.Unlimited() {
			var n int64
			if err := tx.Model(&membershipRow{}).Where("slot_name = ?", slot).Count(&n).Error; err != nil {
				return fmt.Errorf("count members of %s: %w", slot, err)
			}
			if int(n) > target.Capacity {
				return errors.NewCapacityExhaustion(slot, len(ids),
					fmt.Sprintf("staging holds %d requests, capacity %d", n, target.Capacity))
			}
		}
		return nil
	})
	if err != nil {
		return StageResult{}, err
	}
	return result, nil
}

func stageOne(ctx context.Context, tx *gorm.DB, slot string, id int64, opts StageOptions, result *StageResult) error {
	var row requestRow
	if err := tx.Preload("Actions", orderedActions).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NewNotFoundError("request", fmt.Sprint(id)).WithCause(errors.ErrRequestNotFound)
		}
		return fmt.Errorf("query request %d: %w", id, err)
	}
	req := toRequest(row)
	if !req.State.IsOpen() {
		return errors.Wrapf(errors.ErrRequestNotFound, "request %d is %s", id, req.State)
	}

	var current membershipRow
	err := tx.First(&current, "request_id = ?", id).Error
	switch {
	case err == nil && current.SlotName == slot:
		result.Unchanged = append(result.Unchanged, id)
		return nil
	case err == nil:
		if !opts.Move {
			return errors.Wrapf(errors.ErrAlreadyStaged, "request %d is already in %s, use move", id, current.SlotName)
		}
		if opts.From != "" && current.SlotName != opts.From {
			return errors.Wrapf(errors.ErrAlreadyStaged, "request %d is in %s, not %s", id, current.SlotName, opts.From)
		}
		if err := tx.Delete(&current).Error; err != nil {
			return fmt.Errorf("remove request %d from %s: %w", id, current.SlotName, err)
		}
		result.Moved = append(result.Moved, id)
	case errors.Is(err, gorm.ErrRecordNotFound):
		result.Staged = append(result.Staged, id)
	default:
		return fmt.Errorf("query membership of %d: %w", id, err)
	}

	var older []membershipRow
	if err := tx.Where("slot_name = ? AND package = ? AND request_id <> ?", slot, req.Package(), id).Find(&older).Error; err != nil {
		return fmt.Errorf("query superseded requests: %w", err)
	}
	for _, o := range older {
		if err := tx.Delete(&o).Error; err != nil {
			return fmt.Errorf("remove superseded request %d: %w", o.RequestID, err)
		}
		if err := tx.Model(&requestRow{}).Where("id = ?", o.RequestID).Update("state", string(request.StateSuperseded)).Error; err != nil {
			return fmt.Errorf("supersede request %d: %w", o.RequestID, err)
		}
		result.Superseded = append(result.Superseded, o.RequestID)
	}

	m := membershipRow{RequestID: id, SlotName: slot, Package: req.Package(), AddedAt: time.Now().UTC()}
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("stage request %d into %s: %w", id, slot, err)
	}
	return nil
}

// Unstage removes ids from their slots and returns the slot each one left.
// Every id must be staged; otherwise nothing changes.
func (s *Store) Unstage(ctx context.Context, ids []int64) (map[int64]string, error) {
	removed := make(map[int64]string, len(ids))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var m membershipRow
			if err := tx.First(&m, "request_id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Wrapf(errors.ErrNotStaged, "request %d", id)
				}
				return fmt.Errorf("query membership of %d: %w", id, err)
			}
			if err := tx.Delete(&m).Error; err != nil {
				return fmt.Errorf("unstage request %d: %w", id, err)
			}
			removed[id] = m.SlotName
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// AcceptSlot marks every member of slot accepted, empties the slot and
// reopens it. It returns the accepted request ids.
func (s *Store) AcceptSlot(ctx context.Context, slot string) ([]int64, error) {
	var accepted []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := slotTx(ctx, tx, slot)
		if err != nil {
			return err
		}
		accepted = current.Members
		if len(accepted) > 0 {
			if err := tx.Model(&requestRow{}).Where("id IN ?", accepted).Update("state", string(request.StateAccepted)).Error; err != nil {
				return fmt.Errorf("accept requests: %w", err)
			}
			if err := tx.Where("slot_name = ?", slot).Delete(&membershipRow{}).Error; err != nil {
				return fmt.Errorf("empty staging %s: %w", slot, err)
			}
		}
		return tx.Model(&slotRow{}).Where("name = ?", slot).Update("state", string(request.SlotOpen)).Error
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// FreezeSlot stamps the freeze time, sets the bootstrap flag and moves the
// slot to building.
func (s *Store) FreezeSlot(ctx context.Context, slot string, at time.Time, bootstrap bool) error {
	res := s.db.WithContext(ctx).Model(&slotRow{}).Where("name = ?", slot).Updates(map[string]any{
		"frozen_at": at.UTC(),
		"bootstrap": bootstrap,
		"state":     string(request.SlotBuilding),
	})
	if res.Error != nil {
		return fmt.Errorf("freeze %s: %w", slot, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NewNotFoundError("staging", slot).WithCause(errors.ErrStagingNotFound)
	}
	return nil
}

// SetSlotState records the build state of slot.
func (s *Store) SetSlotState(ctx context.Context, slot string, state request.SlotState) error {
	res := s.db.WithContext(ctx).Model(&slotRow{}).Where("name = ?", slot).Update("state", string(state))
	if res.Error != nil {
		return fmt.Errorf("set state of %s: %w", slot, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NewNotFoundError("staging", slot).WithCause(errors.ErrStagingNotFound)
	}
	return nil
}
