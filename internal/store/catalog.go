package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// OpenRequests returns the open requests whose primary action targets
// project, ordered by id. Derived attributes are left empty.
func (s *Store) OpenRequests(ctx context.Context, project string) ([]request.Request, error) {
	targeting := s.db.Model(&actionRow{}).
		Select("request_id").
		Where("position = 0 AND target_project = ?", project)

	var rows []requestRow
	err := s.db.WithContext(ctx).
		Preload("Actions", orderedActions).
		Where("state IN ?", openStates()).
		Where("id IN (?)", targeting).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query open requests: %w", err)
	}

	reqs := make([]request.Request, len(rows))
	for i, row := range rows {
		reqs[i] = toRequest(row)
	}
	return reqs, nil
}

// Request returns a request by id regardless of its state.
func (s *Store) Request(ctx context.Context, id int64) (request.Request, error) {
	var row requestRow
	err := s.db.WithContext(ctx).Preload("Actions", orderedActions).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return request.Request{}, errors.NewNotFoundError("request", fmt.Sprint(id)).WithCause(errors.ErrRequestNotFound)
		}
		return request.Request{}, fmt.Errorf("query request %d: %w", id, err)
	}
	return toRequest(row), nil
}

// Slots returns the staging slots of project with their members, ordered
// by name.
func (s *Store) Slots(ctx context.Context, project string) ([]request.StagingSlot, error) {
	var rows []slotRow
	if err := s.db.WithContext(ctx).Where("project = ?", project).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query staging slots: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	var members []membershipRow
	if err := s.db.WithContext(ctx).Where("slot_name IN ?", names).Order("request_id").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("query staging members: %w", err)
	}
	bySlot := make(map[string][]int64, len(rows))
	for _, m := range members {
		bySlot[m.SlotName] = append(bySlot[m.SlotName], m.RequestID)
	}

	slots := make([]request.StagingSlot, len(rows))
	for i, r := range rows {
		slots[i] = toSlot(r, bySlot[r.Name])
	}
	return slots, nil
}

// Slot returns a single staging slot by full name.
func (s *Store) Slot(ctx context.Context, name string) (request.StagingSlot, error) {
	return slotTx(ctx, s.db, name)
}

func slotTx(ctx context.Context, db *gorm.DB, name string) (request.StagingSlot, error) {
	var row slotRow
	if err := db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return request.StagingSlot{}, errors.NewNotFoundError("staging", name).WithCause(errors.ErrStagingNotFound)
		}
		return request.StagingSlot{}, fmt.Errorf("query staging %s: %w", name, err)
	}
	var ids []int64
	if err := db.WithContext(ctx).Model(&membershipRow{}).Where("slot_name = ?", name).Order("request_id").Pluck("request_id", &ids).Error; err != nil {
		return request.StagingSlot{}, fmt.Errorf("query staging members: %w", err)
	}
	return toSlot(row, ids), nil
}

func toSlot(row slotRow, members []int64) request.StagingSlot {
	slot := request.StagingSlot{
		Name:      row.Name,
		Capacity:  row.Capacity,
		Bootstrap: row.Bootstrap,
		State:     request.SlotState(row.State),
		Members:   members,
	}
	if row.FrozenAt != nil {
		slot.FrozenAt = *row.FrozenAt
	}
	return slot
}

// Devel returns the devel relationship of project/pkg, if any.
func (s *Store) Devel(ctx context.Context, project, pkg string) (request.DevelRelationship, bool, error) {
	var row develRow
	err := s.db.WithContext(ctx).Where("project = ? AND package = ?", project, pkg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return request.DevelRelationship{}, false, nil
	}
	if err != nil {
		return request.DevelRelationship{}, false, fmt.Errorf("query devel of %s/%s: %w", project, pkg, err)
	}
	return request.DevelRelationship{Project: row.DevelProject, Package: row.DevelPackage}, true, nil
}

// IsDevelProject reports whether sourceProject is the devel project of any
// package in targetProject.
func (s *Store) IsDevelProject(ctx context.Context, sourceProject, targetProject string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&develRow{}).
		Where("project = ? AND devel_project = ?", targetProject, sourceProject).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("search devel projects: %w", err)
	}
	return n > 0, nil
}

// Link returns the package that project/pkg links to, if any.
func (s *Store) Link(ctx context.Context, project, pkg string) (request.LinkTarget, bool, error) {
	var row linkRow
	err := s.db.WithContext(ctx).Where("project = ? AND package = ?", project, pkg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return request.LinkTarget{}, false, nil
	}
	if err != nil {
		return request.LinkTarget{}, false, fmt.Errorf("query link of %s/%s: %w", project, pkg, err)
	}
	return request.LinkTarget{Project: row.LinkProject, Package: row.LinkPackage}, true, nil
}

// Ring returns the ring of project/pkg, or "" when it belongs to none.
func (s *Store) Ring(ctx context.Context, project, pkg string) (string, error) {
	var row ringRow
	err := s.db.WithContext(ctx).Where("project = ? AND package = ?", project, pkg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query ring of %s/%s: %w", project, pkg, err)
	}
	return row.Ring, nil
}
