package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Iron-Ham/stagectl/internal/request"
)

// Fixture describes catalog contents for a project. Staging names may be
// given in short form.
type Fixture struct {
	Project  string           `yaml:"project"`
	Requests []FixtureRequest `yaml:"requests"`
	Stagings []FixtureStaging `yaml:"stagings"`
	Devel    []FixtureDevel   `yaml:"devel"`
	Links    []FixtureLink    `yaml:"links"`
	Rings    []FixtureRing    `yaml:"rings"`
}

// FixtureRequest is a request entry in a fixture.
type FixtureRequest struct {
	ID      int64            `yaml:"id"`
	State   string           `yaml:"state"`
	Actions []request.Action `yaml:"actions"`
	Staging string           `yaml:"staging"`
}

// FixtureStaging is a staging slot entry in a fixture.
type FixtureStaging struct {
	Name      string `yaml:"name"`
	Capacity  int    `yaml:"capacity"`
	Bootstrap bool   `yaml:"bootstrap"`
	State     string `yaml:"state"`
}

// FixtureDevel maps a target package to its devel package.
type FixtureDevel struct {
	Project      string `yaml:"project"`
	Package      string `yaml:"package"`
	DevelProject string `yaml:"devel_project"`
	DevelPackage string `yaml:"devel_package"`
}

// FixtureLink marks a package as linked to another.
type FixtureLink struct {
	Project     string `yaml:"project"`
	Package     string `yaml:"package"`
	LinkProject string `yaml:"link_project"`
	LinkPackage string `yaml:"link_package"`
}

// FixtureRing assigns a package to a ring.
type FixtureRing struct {
	Project string `yaml:"project"`
	Package string `yaml:"package"`
	Ring    string `yaml:"ring"`
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Seed upserts the fixture contents in one transaction. Empty project
// fields default to the fixture project.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	upsert := clause.OnConflict{UpdateAll: true}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range f.Stagings {
			state := st.State
			if state == "" {
				state = string(request.SlotOpen)
			}
			row := slotRow{
				Name:      request.StagingProject(f.Project, st.Name),
				Project:   f.Project,
				Capacity:  st.Capacity,
				Bootstrap: st.Bootstrap,
				State:     state,
			}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("seed staging %s: %w", st.Name, err)
			}
		}

		for _, r := range f.Requests {
			if err := seedRequest(tx, f.Project, r); err != nil {
				return err
			}
		}

		for _, d := range f.Devel {
			row := develRow{Project: or(d.Project, f.Project), Package: d.Package, DevelProject: d.DevelProject, DevelPackage: or(d.DevelPackage, d.Package)}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("seed devel %s: %w", d.Package, err)
			}
		}
		for _, l := range f.Links {
			row := linkRow{Project: or(l.Project, f.Project), Package: l.Package, LinkProject: l.LinkProject, LinkPackage: l.LinkPackage}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("seed link %s: %w", l.Package, err)
			}
		}
		for _, r := range f.Rings {
			row := ringRow{Project: or(r.Project, f.Project), Package: r.Package, Ring: r.Ring}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("seed ring %s: %w", r.Package, err)
			}
		}
		return nil
	})
}

func seedRequest(tx *gorm.DB, project string, r FixtureRequest) error {
	state := r.State
	if state == "" {
		state = string(request.StateReview)
	}
	actions := make([]request.Action, len(r.Actions))
	for i, a := range r.Actions {
		a.Target.Project = or(a.Target.Project, project)
		actions[i] = a
	}

	row := requestRow{ID: r.ID, State: state}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit("Actions").Create(&row).Error; err != nil {
		return fmt.Errorf("seed request %d: %w", r.ID, err)
	}
	if err := tx.Where("request_id = ?", r.ID).Delete(&actionRow{}).Error; err != nil {
		return fmt.Errorf("seed request %d: %w", r.ID, err)
	}
	if rows := toActionRows(r.ID, actions); len(rows) > 0 {
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("seed actions of %d: %w", r.ID, err)
		}
	}

	if r.Staging == "" {
		return nil
	}
	pkg := ""
	if len(actions) > 0 {
		pkg = request.Request{Actions: actions}.Package()
	}
	m := membershipRow{
		RequestID: r.ID,
		SlotName:  request.StagingProject(project, r.Staging),
		Package:   pkg,
		AddedAt:   time.Now().UTC(),
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("seed membership of %d: %w", r.ID, err)
	}
	return nil
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
