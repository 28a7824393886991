package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// IgnoreStore persists the ignore list of one project in the catalog
// database.
type IgnoreStore struct {
	db      *gorm.DB
	project string
}

// Ignores returns the ignore-list store for project.
func (s *Store) Ignores(project string) *IgnoreStore {
	return &IgnoreStore{db: s.db, project: project}
}

// Load returns every ignored request id with its message.
func (s *IgnoreStore) Load(ctx context.Context) (map[int64]string, error) {
	var rows []ignoreRow
	if err := s.db.WithContext(ctx).Where("project = ?", s.project).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ignore list: %w", err)
	}
	entries := make(map[int64]string, len(rows))
	for _, r := range rows {
		entries[r.RequestID] = r.Message
	}
	return entries, nil
}

// Save replaces the stored list with entries.
func (s *IgnoreStore) Save(ctx context.Context, entries map[int64]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project = ?", s.project).Delete(&ignoreRow{}).Error; err != nil {
			return fmt.Errorf("clear ignore list: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]ignoreRow, 0, len(entries))
		for id, msg := range entries {
			rows = append(rows, ignoreRow{Project: s.project, RequestID: id, Message: msg})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save ignore list: %w", err)
		}
		return nil
	})
}
