// Package store persists the request catalog, staging slots, reviews and
// the ignore list in a relational database through gorm.
package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// Store is the catalog database.
type Store struct {
	db *gorm.DB
}

// Open connects to the catalog database and migrates its schema.
// driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.NewValidationError("unsupported database driver").WithField("store.driver").WithValue(driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		// sqlite serializes writers; in-memory databases exist per connection.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func openStates() []string {
	return []string{string(request.StateNew), string(request.StateReview)}
}

func toRequest(row requestRow) request.Request {
	r := request.Request{ID: row.ID, State: request.State(row.State)}
	for _, a := range row.Actions {
		r.Actions = append(r.Actions, request.Action{
			Type:   request.ActionKind(a.Type),
			Source: request.Identity{Project: a.SourceProject, Package: a.SourcePackage, Revision: a.SourceRevision},
			Target: request.Identity{Project: a.TargetProject, Package: a.TargetPackage},
		})
	}
	return r
}

func toActionRows(id int64, actions []request.Action) []actionRow {
	rows := make([]actionRow, len(actions))
	for i, a := range actions {
		rows[i] = actionRow{
			RequestID:      id,
			Position:       i,
			Type:           string(a.Type),
			SourceProject:  a.Source.Project,
			SourcePackage:  a.Source.Package,
			SourceRevision: a.Source.Revision,
			TargetProject:  a.Target.Project,
			TargetPackage:  a.Target.Package,
		}
	}
	return rows
}

func orderedActions(db *gorm.DB) *gorm.DB { return db.Order("position") }
