package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Project status values derived from part start dates and archives.
const (
	StatusInactive          = "inactive"
	StatusActive            = "active"
	StatusRecentlyCompleted = "recently_completed"
)

// DefaultRecentWindow is how long a completed project is reported as
// recently completed.
const DefaultRecentWindow = 14 * 24 * time.Hour

// ProjectService implements the administrative operations on projects and
// parts.
type ProjectService struct {
	DB           *gorm.DB
	Clock        Clock
	RecentWindow time.Duration
}

// ProjectInput describes a new project.
type ProjectInput struct {
	Name      string
	URL       string
	Materials []string
}

// PartInput describes a new part.
type PartInput struct {
	Name            string
	Goal            int
	EstimatedLength float64
	EstimatedWeight float64
}

// ProjectDetail is a project with its materials, parts and derived status.
type ProjectDetail struct {
	Project         domain.Project `json:"project"`
	Materials       []string       `json:"materials"`
	Parts           []domain.Part  `json:"parts"`
	Status          string         `json:"status"`
	PercentComplete float64        `json:"percent_complete"`
}

// CreateProject validates and inserts a project with its materials. Material
// names are upper-cased and de-duplicated.
func (s *ProjectService) CreateProject(ctx context.Context, in ProjectInput) (*ProjectDetail, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "CreateProject",
		trace.WithAttributes(attribute.String("project.name", in.Name)),
	)
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return nil, ErrInvalidInput
	}
	materials := canonicalMaterials(in.Materials)

	p := &domain.Project{Name: name, URL: strings.TrimSpace(in.URL)}
	if err := repo.CreateProject(ctx, s.DB, p, materials); err != nil {
		return nil, err
	}
	return &ProjectDetail{
		Project:   *p,
		Materials: materials,
		Parts:     []domain.Part{},
		Status:    StatusInactive,
	}, nil
}

// AddPart adds a part to a project. New parts are inactive until the
// project is started.
func (s *ProjectService) AddPart(ctx context.Context, projectID uint, in PartInput) (*domain.Part, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "AddPart",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))),
	)
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 || in.Goal < 0 || in.EstimatedLength < 0 || in.EstimatedWeight < 0 {
		return nil, ErrInvalidInput
	}
	if _, err := repo.GetProject(ctx, s.DB, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	part := &domain.Part{
		ProjectID:       projectID,
		Name:            name,
		Goal:            in.Goal,
		EstimatedLength: in.EstimatedLength,
		EstimatedWeight: in.EstimatedWeight,
	}
	if err := repo.CreatePart(ctx, s.DB, part); err != nil {
		return nil, err
	}
	return part, nil
}

// StartProject opens a new goal cycle on every part with a positive goal.
// It returns how many parts were started.
func (s *ProjectService) StartProject(ctx context.Context, projectID uint) (int64, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "StartProject",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))),
	)
	defer span.End()

	// The project lock orders the restart after any in-flight submission, so
	// no row is filed under the old cycle with a timestamp from the new one.
	var n int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.LockProject(ctx, tx, projectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrProjectNotFound
			}
			return fmt.Errorf("lock project: %w", err)
		}
		var err error
		if n, err = repo.StartParts(ctx, tx, projectID, nowFrom(s.Clock)); err != nil {
			return fmt.Errorf("start parts: %w", err)
		}
		if n == 0 {
			return ErrNoGoals
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger(ctx).Info().Uint("project_id", projectID).Int64("parts", n).Msg("goal cycle started")
	return n, nil
}

// DeleteProject removes a project and everything that references it.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID uint) error {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "DeleteProject",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))),
	)
	defer span.End()

	if err := repo.DeleteProject(ctx, s.DB, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

// DeleteArchive removes one completion archive record.
func (s *ProjectService) DeleteArchive(ctx context.Context, archiveID uint) error {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "DeleteArchive",
		trace.WithAttributes(attribute.Int64("archive.id", int64(archiveID))),
	)
	defer span.End()

	if err := repo.DeleteCompleted(ctx, s.DB, archiveID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrArchiveNotFound
		}
		return err
	}
	return nil
}

// Get returns a project with its materials, parts and status.
func (s *ProjectService) Get(ctx context.Context, projectID uint) (*ProjectDetail, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))),
	)
	defer span.End()

	p, err := repo.GetProject(ctx, s.DB, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	materials, err := repo.ListMaterials(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	parts, err := repo.ListParts(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	if materials == nil {
		materials = []string{}
	}
	if parts == nil {
		parts = []domain.Part{}
	}

	d := &ProjectDetail{Project: *p, Materials: materials, Parts: parts, Status: StatusInactive}
	var goal, progress int
	for _, pt := range parts {
		if pt.Active() {
			d.Status = StatusActive
			goal += pt.Goal
			progress += pt.Progress
		}
	}
	d.PercentComplete = percent(progress, goal)

	if d.Status == StatusInactive {
		window := s.RecentWindow
		if window <= 0 {
			window = DefaultRecentWindow
		}
		archives, err := repo.ListProjectCompleted(ctx, s.DB, projectID)
		if err != nil {
			return nil, err
		}
		if len(archives) > 0 && !archives[0].CompletedDate.Before(nowFrom(s.Clock).Add(-window)) {
			d.Status = StatusRecentlyCompleted
		}
	}
	return d, nil
}

// canonicalMaterials trims, upper-cases and de-duplicates material names,
// keeping first-seen order.
func canonicalMaterials(in []string) []string {
	upper := cases.Upper(language.Und)
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = upper.String(strings.TrimSpace(m))
		if m == "" || len(m) > 64 {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// percent returns progress/goal as a percentage rounded to one decimal,
// capped at 100.
func percent(progress, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	p := float64(progress) * 100 / float64(goal)
	if p > 100 {
		p = 100
	}
	return float64(int(p*10+0.5)) / 10
}
