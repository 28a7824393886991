package store

import "time"

type requestRow struct {
	ID        int64       `gorm:"primaryKey;column:id;autoIncrement:false"`
	State     string      `gorm:"column:state;type:varchar(32);not null;index:idx_requests_state"`
	Actions   []actionRow `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at"`
	UpdatedAt time.Time   `gorm:"column:updated_at"`
}

func (requestRow) TableName() string { return "requests" }

type actionRow struct {
	ID             int64  `gorm:"primaryKey;column:id"`
	RequestID      int64  `gorm:"column:request_id;not null;index:idx_actions_request"`
	Position       int    `gorm:"column:position;not null"`
	Type           string `gorm:"column:type;type:varchar(64);not null"`
	SourceProject  string `gorm:"column:source_project;type:varchar(255)"`
	SourcePackage  string `gorm:"column:source_package;type:varchar(255)"`
	SourceRevision string `gorm:"column:source_revision;type:varchar(64)"`
	TargetProject  string `gorm:"column:target_project;type:varchar(255);index:idx_actions_target"`
	TargetPackage  string `gorm:"column:target_package;type:varchar(255);index:idx_actions_target"`
}

func (actionRow) TableName() string { return "request_actions" }

type develRow struct {
	Project      string `gorm:"primaryKey;column:project;type:varchar(255)"`
	Package      string `gorm:"primaryKey;column:package;type:varchar(255)"`
	DevelProject string `gorm:"column:devel_project;type:varchar(255);not null;index:idx_devel_project"`
	DevelPackage string `gorm:"column:devel_package;type:varchar(255);not null"`
}

func (develRow) TableName() string { return "devel_relationships" }

type linkRow struct {
	Project     string `gorm:"primaryKey;column:project;type:varchar(255)"`
	Package     string `gorm:"primaryKey;column:package;type:varchar(255)"`
	LinkProject string `gorm:"column:link_project;type:varchar(255);not null"`
	LinkPackage string `gorm:"column:link_package;type:varchar(255);not null"`
}

func (linkRow) TableName() string { return "package_links" }

type ringRow struct {
	Project string `gorm:"primaryKey;column:project;type:varchar(255)"`
	Package string `gorm:"primaryKey;column:package;type:varchar(255)"`
	Ring    string `gorm:"column:ring;type:varchar(64);not null"`
}

func (ringRow) TableName() string { return "package_rings" }

type slotRow struct {
	Name      string     `gorm:"primaryKey;column:name;type:varchar(255)"`
	Project   string     `gorm:"column:project;type:varchar(255);not null;index:idx_slots_project"`
	Capacity  int        `gorm:"column:capacity;not null;default:0"`
	Bootstrap bool       `gorm:"column:bootstrap;not null;default:false"`
	State     string     `gorm:"column:state;type:varchar(32);not null"`
	FrozenAt  *time.Time `gorm:"column:frozen_at"`
}

func (slotRow) TableName() string { return "staging_slots" }

// membershipRow keys on the request, so a request sits in at most one slot.
type membershipRow struct {
	RequestID int64     `gorm:"primaryKey;column:request_id;autoIncrement:false"`
	SlotName  string    `gorm:"column:slot_name;type:varchar(255);not null;index:idx_membership_slot"`
	Package   string    `gorm:"column:package;type:varchar(255);not null"`
	AddedAt   time.Time `gorm:"column:added_at"`
}

func (membershipRow) TableName() string { return "staging_members" }

type ignoreRow struct {
	Project   string `gorm:"primaryKey;column:project;type:varchar(255)"`
	RequestID int64  `gorm:"primaryKey;column:request_id;autoIncrement:false"`
	Message   string `gorm:"column:message;type:text"`
}

func (ignoreRow) TableName() string { return "ignored_requests" }

type reviewRow struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	RequestID int64     `gorm:"column:request_id;not null;uniqueIndex:idx_reviews_target"`
	Kind      string    `gorm:"column:kind;type:varchar(16);not null;uniqueIndex:idx_reviews_target"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_reviews_target"`
	Message   string    `gorm:"column:message;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (reviewRow) TableName() string { return "request_reviews" }

type verdictRow struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	RequestID int64     `gorm:"column:request_id;not null;index:idx_verdicts_request"`
	Status    string    `gorm:"column:status;type:varchar(16);not null"`
	Message   string    `gorm:"column:message;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (verdictRow) TableName() string { return "request_verdicts" }

type commentRow struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	RequestID int64     `gorm:"column:request_id;not null;index:idx_comments_request"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (commentRow) TableName() string { return "request_comments" }

func allModels() []any {
	return []any{
		&requestRow{}, &actionRow{}, &develRow{}, &linkRow{}, &ringRow{},
		&slotRow{}, &membershipRow{}, &ignoreRow{}, &reviewRow{}, &verdictRow{}, &commentRow{},
	}
}
