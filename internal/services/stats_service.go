package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StatsService serves the read-only views: project progress, archives and
// contribution totals.
type StatsService struct {
	DB           *gorm.DB
	Clock        Clock
	RecentWindow time.Duration
}

// ProjectSummary is an active project's aggregate progress.
type ProjectSummary struct {
	ProjectID       uint    `json:"project_id"`
	Name            string  `json:"name"`
	URL             string  `json:"url"`
	ActiveParts     int64   `json:"active_parts"`
	Goal            int64   `json:"goal"`
	Progress        int64   `json:"progress"`
	PercentComplete float64 `json:"percent_complete"`
}

// Archive is a completion record with its decoded snapshot.
type Archive struct {
	ID            uint            `json:"id"`
	ProjectID     uint            `json:"project_id"`
	ProjectName   string          `json:"project_name"`
	CompletedDate time.Time       `json:"completed_date"`
	Parts         domain.Snapshot `json:"parts"`
}

// PartContribution is a lifetime quantity for one part with the derived
// filament estimates.
type PartContribution struct {
	PartID      uint    `json:"part_id"`
	PartName    string  `json:"part_name"`
	ProjectID   uint    `json:"project_id"`
	ProjectName string  `json:"project_name"`
	Quantity    int64   `json:"quantity"`
	LengthM     float64 `json:"length_m"`
	WeightG     float64 `json:"weight_g"`
}

// ContributionReport sums lifetime contributions across parts.
type ContributionReport struct {
	UserID      string             `json:"user_id,omitempty"`
	Parts       []PartContribution `json:"parts"`
	TotalUnits  int64              `json:"total_units"`
	TotalLength float64            `json:"total_length_m"`
	TotalWeight float64            `json:"total_weight_g"`
}

// Contributor is one user's current-cycle total within a project.
type Contributor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Total    int64  `json:"total"`
}

// ActiveProjects lists projects with at least one started part.
func (s *StatsService) ActiveProjects(ctx context.Context) ([]ProjectSummary, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "ActiveProjects")
	defer span.End()

	rows, err := repo.ActiveProjectProgress(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, ProjectSummary{
			ProjectID:       r.ProjectID,
			Name:            r.Name,
			URL:             r.URL,
			ActiveParts:     r.ActiveParts,
			Goal:            r.Goal,
			Progress:        r.Progress,
			PercentComplete: percent(int(r.Progress), int(r.Goal)),
		})
	}
	return out, nil
}

// UnfulfilledProjects returns the active projects that still need parts.
// Completion resets a project's parts in the same transaction, so every
// active project is unfulfilled.
func (s *StatsService) UnfulfilledProjects(ctx context.Context) ([]ProjectSummary, error) {
	return s.ActiveProjects(ctx)
}

// RecentlyCompleted returns archives inside the recent-completion window.
func (s *StatsService) RecentlyCompleted(ctx context.Context) ([]Archive, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "RecentlyCompleted")
	defer span.End()

	window := s.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	rows, err := repo.ListCompletedSince(ctx, s.DB, nowFrom(s.Clock).Add(-window))
	if err != nil {
		return nil, err
	}
	return decodeArchives(rows)
}

// ProjectArchives returns every archive of a project, newest first.
func (s *StatsService) ProjectArchives(ctx context.Context, projectID uint) ([]Archive, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "ProjectArchives",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))),
	)
	defer span.End()

	if _, err := repo.GetProject(ctx, s.DB, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	rows, err := repo.ListProjectCompleted(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	return decodeArchives(rows)
}

// UserContributions returns a user's lifetime totals.
func (s *StatsService) UserContributions(ctx context.Context, userID string) (*ContributionReport, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "UserContributions",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthenticated
	}
	rep, err := s.contributions(ctx, userID)
	if err != nil {
		return nil, err
	}
	rep.UserID = userID
	return rep, nil
}

// GroupContributions returns everyone's lifetime totals.
func (s *StatsService) GroupContributions(ctx context.Context) (*ContributionReport, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "GroupContributions")
	defer span.End()

	return s.contributions(ctx, "")
}

// TopContributors ranks users by current-cycle totals within a project.
func (s *StatsService) TopContributors(ctx context.Context, projectID uint, limit int) ([]Contributor, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "TopContributors",
		trace.WithAttributes(
			attribute.Int64("project.id", int64(projectID)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	rows, err := repo.TopContributors(ctx, s.DB, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Contributor, 0, len(rows))
	for _, r := range rows {
		name := r.Username
		if name == "" {
			name = r.UserID
		}
		out = append(out, Contributor{UserID: r.UserID, Username: name, Total: r.Total})
	}
	return out, nil
}

// UserSubmissions lists the user's current-cycle submissions for a part,
// newest first. An inactive part has none.
func (s *StatsService) UserSubmissions(ctx context.Context, userID string, partID uint) ([]domain.Submission, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "UserSubmissions",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("part.id", int64(partID)),
		),
	)
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthenticated
	}
	part, err := repo.GetPart(ctx, s.DB, partID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPartNotFound
		}
		return nil, err
	}
	if !part.Active() {
		return []domain.Submission{}, nil
	}
	subs, err := repo.ListUserSubmissions(ctx, s.DB, userID, partID, *part.StartDate)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}

func (s *StatsService) contributions(ctx context.Context, userID string) (*ContributionReport, error) {
	rows, err := repo.LifetimeTotals(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	rep := &ContributionReport{Parts: make([]PartContribution, 0, len(rows))}
	for _, r := range rows {
		pc := PartContribution{
			PartID:      r.PartID,
			PartName:    r.PartName,
			ProjectID:   r.ProjectID,
			ProjectName: r.ProjectName,
			Quantity:    r.Quantity,
			LengthM:     float64(r.Quantity) * r.EstimatedLength,
			WeightG:     float64(r.Quantity) * r.EstimatedWeight,
		}
		rep.Parts = append(rep.Parts, pc)
		rep.TotalUnits += pc.Quantity
		rep.TotalLength += pc.LengthM
		rep.TotalWeight += pc.WeightG
	}
	return rep, nil
}

func decodeArchives(rows []domain.CompletedGoal) ([]Archive, error) {
	out := make([]Archive, 0, len(rows))
	for _, r := range rows {
		snap, err := r.Snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, Archive{
			ID:            r.ID,
			ProjectID:     r.ProjectID,
			ProjectName:   r.ProjectName,
			CompletedDate: r.CompletedDate,
			Parts:         snap,
		})
	}
	return out, nil
}
