// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the
// read-only views: project progress, contribution totals and leaderboards.
// Each function is context-aware and safe to call from services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// ProjectProgress aggregates the active parts of one project.
type ProjectProgress struct {
	ProjectID   uint
	Name        string
	URL         string
	ActiveParts int64
	Goal        int64
	Progress    int64
}

// ActiveProjectProgress returns every project with at least one started
// part, summing goal and progress over those parts.
func ActiveProjectProgress(ctx context.Context, db *gorm.DB) ([]ProjectProgress, error) {
	var out []ProjectProgress
	err := db.WithContext(ctx).
		Table("production_projects AS p").
		Select(`p.id AS project_id, p.name AS name, p.url AS url,
			COUNT(pt.id) AS active_parts,
			COALESCE(SUM(pt.goal), 0) AS goal,
			COALESCE(SUM(pt.progress), 0) AS progress`).
		Joins("JOIN production_parts AS pt ON pt.project_id = p.id").
		Where("pt.start_date IS NOT NULL").
		Group("p.id, p.name, p.url").
		Order("p.name ASC").
		Scan(&out).Error
	return out, err
}

// PartTotal is a quantity total for one part with its unit estimates.
type PartTotal struct {
	PartID          uint
	PartName        string
	ProjectID       uint
	ProjectName     string
	Quantity        int64
	EstimatedLength float64
	EstimatedWeight float64
}

// LifetimeTotals sums live submissions per part across all cycles. An empty
// userID aggregates every user.
func LifetimeTotals(ctx context.Context, db *gorm.DB, userID string) ([]PartTotal, error) {
	q := db.WithContext(ctx).
		Table("production_submissions AS s").
		Select(`pt.id AS part_id, pt.name AS part_name,
			p.id AS project_id, p.name AS project_name,
			SUM(s.quantity) AS quantity,
			pt.estimated_length AS estimated_length,
			pt.estimated_weight AS estimated_weight`).
		Joins("JOIN production_parts AS pt ON pt.id = s.part_id").
		Joins("JOIN production_projects AS p ON p.id = pt.project_id").
		Where("s.deleted = ?", false)
	if userID != "" {
		q = q.Where("s.user_id = ?", userID)
	}
	var out []PartTotal
	err := q.Group("pt.id, pt.name, p.id, p.name, pt.estimated_length, pt.estimated_weight").
		Order("p.name ASC").Order("pt.id ASC").
		Scan(&out).Error
	return out, err
}

// UserTotal is one user's current-cycle total within a project.
type UserTotal struct {
	UserID   string
	Username string
	Total    int64
}

// TopContributors ranks users by their current-cycle submissions across the
// active parts of a project.
func TopContributors(ctx context.Context, db *gorm.DB, projectID uint, limit int) ([]UserTotal, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []UserTotal
	err := db.WithContext(ctx).
		Table("production_submissions AS s").
		Select("s.user_id AS user_id, MAX(s.username) AS username, SUM(s.quantity) AS total").
		Joins("JOIN production_parts AS pt ON pt.id = s.part_id").
		Where("pt.project_id = ? AND pt.start_date IS NOT NULL AND s.created_at >= pt.start_date AND s.deleted = ?", projectID, false).
		Group("s.user_id").
		Order("total DESC").Order("s.user_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// CycleDrift returns the parts of a project whose progress disagrees with
// the sum of their current-cycle submissions. It is empty when the central
// progress invariant holds.
func CycleDrift(ctx context.Context, db *gorm.DB, projectID uint) ([]domain.Part, error) {
	parts, err := ListParts(ctx, db, projectID)
	if err != nil {
		return nil, err
	}
	var out []domain.Part
	for _, p := range parts {
		want := 0
		if p.StartDate != nil {
			if want, err = SumPartSince(ctx, db, p.ID, *p.StartDate); err != nil {
				return nil, err
			}
		}
		if want != p.Progress {
			out = append(out, p)
		}
	}
	return out, nil
}
