package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/repo"
)

// CompletionDetector archives a project once every active part reached its
// goal, then closes the cycle by resetting those parts.
type CompletionDetector struct {
	Clock Clock
}

// Check runs on the caller's transaction after each mutation. It returns the
// archive record when the project completed and nil otherwise. The caller
// must already hold the project lock, so two mutations finishing different
// parts cannot both miss (or both archive) the completion.
func (d *CompletionDetector) Check(ctx context.Context, tx *gorm.DB, projectID uint) (*domain.CompletedGoal, error) {
	parts, err := repo.LockActiveParts(ctx, tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("lock active parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	for _, p := range parts {
		if p.Progress < p.Goal {
			return nil, nil
		}
	}

	snap := make(domain.Snapshot, 0, len(parts))
	for _, p := range parts {
		contribs, err := repo.ContributionsSince(ctx, tx, p.ID, *p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("contributions for part %d: %w", p.ID, err)
		}
		snap = append(snap, domain.PartSnapshot{
			PartID:        p.ID,
			PartName:      p.Name,
			Goal:          p.Goal,
			Progress:      p.Progress,
			Contributions: contribs,
		})
	}
	encoded, err := snap.Encode()
	if err != nil {
		return nil, err
	}

	project, err := repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	archive := &domain.CompletedGoal{
		ProjectID:         projectID,
		ProjectName:       project.Name,
		CompletedDate:     nowFrom(d.Clock),
		UserContributions: encoded,
	}
	if err := repo.CreateCompleted(ctx, tx, archive); err != nil {
		return nil, fmt.Errorf("archive project %d: %w", projectID, err)
	}
	if err := repo.ResetParts(ctx, tx, projectID); err != nil {
		return nil, fmt.Errorf("reset parts: %w", err)
	}
	return archive, nil
}
