// Package domain defines the persistence models for production projects,
// parts, submissions, and the completion archive. These types are mapped with
// GORM and form the Progress Store shared by the repository and service layers.
package domain

import (
	"time"
)

// Project is a manufacturing effort made of one or more parts with goals.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Name / URL: display metadata.
//   - CreatedAt: managed by GORM.
//
// Materials and parts reference the project and are cascade-deleted with it.
type Project struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	URL       string    `json:"url"        gorm:"type:varchar(512);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "production_projects" }

// Material names one material a project is printed in.
type Material struct {
	ID        uint   `json:"id"         gorm:"primaryKey"`
	ProjectID uint   `json:"project_id" gorm:"not null;index:idx_material_project"`
	Material  string `json:"material"   gorm:"type:varchar(64);not null"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Material.
func (Material) TableName() string { return "production_project_materials" }

// Part is a component type within a project.
//
// Progress counts quantity submitted since StartDate and is reset by the
// completion detector. LifetimeTotal mirrors the net effect of every
// submission, edit and delete and is never reset. A nil StartDate means the
// part is not accepting contributions.
type Part struct {
	ID              uint       `json:"id"               gorm:"primaryKey"`
	ProjectID       uint       `json:"project_id"       gorm:"not null;index:idx_part_project"`
	Name            string     `json:"name"             gorm:"type:varchar(255);not null"`
	Goal            int        `json:"goal"             gorm:"not null;default:0"`
	Progress        int        `json:"progress"         gorm:"not null;default:0"`
	LifetimeTotal   int        `json:"lifetime_total"   gorm:"not null;default:0"`
	EstimatedLength float64    `json:"estimated_length" gorm:"not null;default:0"`
	EstimatedWeight float64    `json:"estimated_weight" gorm:"not null;default:0"`
	StartDate       *time.Time `json:"start_date"`
	CreatedAt       time.Time  `json:"created_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Part.
func (Part) TableName() string { return "production_parts" }

// Active reports whether the part is in a goal cycle.
func (p Part) Active() bool { return p.StartDate != nil }

// Counts reports whether a submission created at t belongs to the part's
// current goal cycle.
func (p Part) Counts(t time.Time) bool {
	return p.StartDate != nil && !t.Before(*p.StartDate)
}

// Submission is one user's recorded contribution toward a part.
//
// Deleted and DeletedAt are kept for schema compatibility only; deletes are
// hard deletes and every read filters deleted = false.
type Submission struct {
	ID        uint       `json:"id"         gorm:"primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_part,priority:1"`
	PartID    uint       `json:"part_id"    gorm:"not null;index:idx_user_part,priority:2"`
	Quantity  int        `json:"quantity"   gorm:"not null"`
	Username  string     `json:"username"   gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_created_at"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"index:idx_updated_at"`
	Deleted   bool       `json:"-"          gorm:"not null;default:false"`
	DeletedAt *time.Time `json:"-"`

	Part Part `json:"-" gorm:"foreignKey:PartID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "production_submissions" }

// CompletedGoal is the immutable archive written when every active part of a
// project reached its goal. UserContributions holds the JSON encoding of a
// Snapshot.
type CompletedGoal struct {
	ID                uint      `json:"id"                 gorm:"primaryKey"`
	ProjectID         uint      `json:"project_id"         gorm:"not null;index:idx_completed_project"`
	ProjectName       string    `json:"project_name"       gorm:"type:varchar(255);not null"`
	CompletedDate     time.Time `json:"completed_date"     gorm:"not null;index:idx_completed_date"`
	UserContributions string    `json:"-"                  gorm:"type:text;not null"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CompletedGoal.
func (CompletedGoal) TableName() string { return "production_completed" }
