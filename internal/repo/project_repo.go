// Package repo implements the data persistence layer for domain entities.
// This file holds project and material persistence. Functions are thin:
// no business rules, only queries, and they accept any *gorm.DB so callers
// can pass a transaction.
package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// CreateProject inserts the project and its material rows.
func CreateProject(ctx context.Context, db *gorm.DB, p *domain.Project, materials []string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for _, m := range materials {
			if err := tx.Create(&domain.Material{ProjectID: p.ID, Material: m}).Error; err != nil {
				return fmt.Errorf("insert material %q: %w", m, err)
			}
		}
		return nil
	})
}

// GetProject fetches a project by id or returns ErrNotFound.
func GetProject(ctx context.Context, db *gorm.DB, id uint) (*domain.Project, error) {
	var p domain.Project
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns every project ordered by name.
func ListProjects(ctx context.Context, db *gorm.DB) ([]domain.Project, error) {
	var out []domain.Project
	err := db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&out).Error
	return out, err
}

// ListMaterials returns the material names of a project.
func ListMaterials(ctx context.Context, db *gorm.DB, projectID uint) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).Model(&domain.Material{}).
		Where("project_id = ?", projectID).
		Order("id ASC").
		Pluck("material", &out).Error
	return out, err
}

// DeleteProject removes a project together with its parts, their
// submissions, materials and archive records. Children are deleted
// explicitly so the cascade does not depend on driver FK enforcement.
// Returns ErrNotFound when the project does not exist.
func DeleteProject(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := LockProject(ctx, tx, id); err != nil {
			return err
		}
		partIDs := tx.Model(&domain.Part{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("part_id IN (?)", partIDs).Delete(&domain.Submission{}).Error; err != nil {
			return fmt.Errorf("delete submissions: %w", err)
		}
		for _, model := range []any{&domain.Part{}, &domain.Material{}, &domain.CompletedGoal{}} {
			if err := tx.Where("project_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete %T: %w", model, err)
			}
		}
		res := tx.Delete(&domain.Project{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// LockProject takes an exclusive lock on the project row for the rest of the
// transaction. Every mutation of a project's parts takes this lock before
// any part lock, which serializes completion checks per project.
func LockProject(ctx context.Context, tx *gorm.DB, projectID uint) (*domain.Project, error) {
	if err := tx.WithContext(ctx).Exec("UPDATE production_projects SET id = id WHERE id = ?", projectID).Error; err != nil {
		return nil, err
	}
	var p domain.Project
	if err := forUpdate(tx.WithContext(ctx)).First(&p, projectID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
