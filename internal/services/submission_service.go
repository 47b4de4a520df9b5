// Package services – SubmissionService
//
// This file implements the mutation protocol behind the submit, edit and
// delete endpoints. Every mutation is gated twice against duplicates: a
// short-lived cache claim on the idempotency key (atomic insert-if-absent)
// and, inside the transaction, the processed-key audit table. Progress and
// lifetime counters change only under the project and part row locks, and
// the completion detector runs before the transaction commits.
//
// Observability: all public methods are OpenTelemetry-instrumented and count
// their outcome in goals_submissions_total.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/cache"
	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/events"
	"github.com/tbourn/go-production-goals/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied when the corresponding SubmissionService field is zero.
const (
	DefaultKeyTTL              = 60 * time.Second
	DefaultDuplicateWindow     = 10 * time.Second
	DefaultEditDuplicateWindow = 3 * time.Second
	DefaultAuditKeep           = 100
)

// SubmissionService applies submissions, edits and deletes to the progress
// store. It is stateless apart from its collaborators and safe for concurrent
// use.
type SubmissionService struct {
	DB       *gorm.DB
	Cache    cache.KeyCache   // short-lived idempotency claims; nil disables the cache gate
	Events   events.Publisher // completion notifications; nil disables publishing
	Detector *CompletionDetector
	Clock    Clock

	KeyTTL              time.Duration
	DuplicateWindow     time.Duration
	EditDuplicateWindow time.Duration
	AuditKeep           int
}

// SubmitRequest is a new contribution toward a part.
type SubmitRequest struct {
	UserID    string
	Username  string
	ProjectID uint
	PartID    uint
	Quantity  int
	Key       string
}

// EditRequest changes the quantity of one of the caller's submissions.
type EditRequest struct {
	UserID       string
	SubmissionID uint
	Quantity     int
	Key          string
}

// DeleteRequest removes one of the caller's submissions.
type DeleteRequest struct {
	UserID       string
	SubmissionID uint
	Key          string
}

// SubmitResult reports the part's state after a submission. When the
// submission completed the project, Progress and UserContribution describe
// the fresh (reset) cycle and Completed is set.
type SubmitResult struct {
	SubmissionID     uint  `json:"submission_id"`
	PartID           uint  `json:"part_id"`
	Progress         int   `json:"progress"`
	Goal             int   `json:"goal"`
	UserContribution int   `json:"user_contribution"`
	Completed        bool  `json:"completed"`
	ArchiveID        *uint `json:"archive_id,omitempty"`
}

// MutationResult reports the part's state after an edit or delete.
type MutationResult struct {
	SubmissionID uint  `json:"submission_id"`
	PartID       uint  `json:"part_id"`
	Progress     int   `json:"progress"`
	Goal         int   `json:"goal"`
	Completed    bool  `json:"completed"`
	ArchiveID    *uint `json:"archive_id,omitempty"`
}

// Submit records a contribution. See the package documentation for the
// duplicate gates; any error leaves the store untouched.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.Int64("project.id", int64(req.ProjectID)),
			attribute.Int64("part.id", int64(req.PartID)),
			attribute.Int("quantity", req.Quantity),
		),
	)
	defer span.End()

	res, archive, err := s.submit(ctx, req)
	s.finish(ctx, span, "submit", err, archive)
	return res, err
}

func (s *SubmissionService) submit(ctx context.Context, req SubmitRequest) (_ *SubmitResult, _ *domain.CompletedGoal, err error) {
	req.Key = strings.TrimSpace(req.Key)
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return nil, nil, ErrUnauthenticated
	case req.Quantity <= 0:
		return nil, nil, ErrInvalidQuantity
	case req.ProjectID == 0 || req.PartID == 0 || req.Key == "":
		return nil, nil, ErrInvalidInput
	}

	part, err := repo.GetProjectPart(ctx, s.DB, req.ProjectID, req.PartID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrPartNotFound
		}
		return nil, nil, fmt.Errorf("load part: %w", err)
	}
	if !part.Active() {
		return nil, nil, ErrPartInactive
	}

	release, err := s.claim(ctx, domain.KeyKindSubmit, req.UserID, req.PartID, req.Key)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrDuplicateKey) {
			release()
		}
	}()

	precheck := nowFrom(s.Clock).Add(-s.duplicateWindow())
	if dup, err := repo.HasRecentExact(ctx, s.DB, req.UserID, req.PartID, req.Quantity, precheck); err != nil {
		return nil, nil, fmt.Errorf("recent duplicate check: %w", err)
	} else if dup {
		return nil, nil, ErrDuplicateRecent
	}

	var (
		res     *SubmitResult
		archive *domain.CompletedGoal
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.LockProject(ctx, tx, req.ProjectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrPartNotFound
			}
			return fmt.Errorf("lock project: %w", err)
		}
		locked, err := repo.LockPart(ctx, tx, req.PartID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrPartNotFound
			}
			return fmt.Errorf("lock part: %w", err)
		}
		if !locked.Active() {
			return ErrPartInactive
		}

		// Read the clock only under the locks, so no cycle can start between
		// the timestamp and the progress update.
		now := nowFrom(s.Clock)
		if dup, err := repo.HasRecentExact(ctx, tx, req.UserID, req.PartID, req.Quantity, now.Add(-s.duplicateWindow())); err != nil {
			return fmt.Errorf("recent duplicate check: %w", err)
		} else if dup {
			return ErrDuplicateRecent
		}
		createdAt := now
		if !locked.Counts(createdAt) {
			// Clock behind the cycle start: file the row at the start so it
			// counts where its quantity does.
			createdAt = *locked.StartDate
		}

		sub := &domain.Submission{
			UserID:    req.UserID,
			PartID:    req.PartID,
			Quantity:  req.Quantity,
			Username:  req.Username,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if err := repo.CreateSubmission(ctx, tx, sub); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		if err := repo.AdjustPartCounters(ctx, tx, req.PartID, req.Quantity, req.Quantity); err != nil {
			return fmt.Errorf("adjust counters: %w", err)
		}
		if err := s.audit(ctx, tx, req.UserID, domain.KeyKindSubmit, req.Key, now); err != nil {
			return err
		}
		if archive, err = s.detector().Check(ctx, tx, locked.ProjectID); err != nil {
			return fmt.Errorf("completion check: %w", err)
		}

		after, err := repo.GetPart(ctx, tx, req.PartID)
		if err != nil {
			return fmt.Errorf("reload part: %w", err)
		}
		res = &SubmitResult{
			SubmissionID: sub.ID,
			PartID:       after.ID,
			Progress:     after.Progress,
			Goal:         after.Goal,
		}
		// The cycle this submission counted in, even when it just completed.
		if res.UserContribution, err = repo.SumUserSince(ctx, tx, req.UserID, locked.ID, *locked.StartDate); err != nil {
			return fmt.Errorf("user contribution: %w", err)
		}
		if archive != nil {
			res.Completed = true
			res.ArchiveID = &archive.ID
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, archive, nil
}

// Edit changes a submission's quantity and moves the part counters by the
// difference. Progress only moves when the submission belongs to the part's
// current cycle.
func (s *SubmissionService) Edit(ctx context.Context, req EditRequest) (*MutationResult, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Edit",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.Int64("submission.id", int64(req.SubmissionID)),
			attribute.Int("quantity", req.Quantity),
		),
	)
	defer span.End()

	res, archive, err := s.edit(ctx, req)
	s.finish(ctx, span, "edit", err, archive)
	return res, err
}

func (s *SubmissionService) edit(ctx context.Context, req EditRequest) (_ *MutationResult, _ *domain.CompletedGoal, err error) {
	req.Key = strings.TrimSpace(req.Key)
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return nil, nil, ErrUnauthenticated
	case req.SubmissionID == 0:
		return nil, nil, ErrInvalidInput
	case req.Quantity <= 0:
		return nil, nil, ErrInvalidQuantity
	case req.Key == "":
		return nil, nil, ErrInvalidInput
	}

	release, err := s.claim(ctx, domain.KeyKindEdit, req.UserID, req.SubmissionID, req.Key)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrDuplicateKey) {
			release()
		}
	}()

	projectID, err := s.projectOf(ctx, req.SubmissionID, req.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrSubmissionNotFound
		}
		return nil, nil, err
	}

	var (
		res     *MutationResult
		archive *domain.CompletedGoal
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.LockProject(ctx, tx, projectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSubmissionNotFound
			}
			return fmt.Errorf("lock project: %w", err)
		}
		sub, err := repo.LockSubmission(ctx, tx, req.SubmissionID, req.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSubmissionNotFound
			}
			return fmt.Errorf("lock submission: %w", err)
		}
		now := nowFrom(s.Clock)
		if sub.Quantity == req.Quantity && now.Sub(sub.UpdatedAt) < s.editDuplicateWindow() {
			return ErrDuplicateEdit
		}

		part, err := repo.LockPart(ctx, tx, sub.PartID)
		if err != nil {
			return fmt.Errorf("lock part: %w", err)
		}
		delta := req.Quantity - sub.Quantity
		progressDelta := 0
		if part.Counts(sub.CreatedAt) {
			progressDelta = delta
		}
		if delta != 0 {
			if err := repo.AdjustPartCounters(ctx, tx, part.ID, progressDelta, delta); err != nil {
				return fmt.Errorf("adjust counters: %w", err)
			}
		}
		if err := repo.UpdateSubmissionQuantity(ctx, tx, sub.ID, req.Quantity, now); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		if err := s.audit(ctx, tx, req.UserID, domain.KeyKindEdit, req.Key, now); err != nil {
			return err
		}
		if archive, err = s.detector().Check(ctx, tx, part.ProjectID); err != nil {
			return fmt.Errorf("completion check: %w", err)
		}
		res, err = mutationResult(ctx, tx, sub.ID, part.ID, archive)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return res, archive, nil
}

// Delete removes a submission and reverses its quantity. Deleting a
// submission that no longer exists is reported as ErrAlreadyDeleted.
func (s *SubmissionService) Delete(ctx context.Context, req DeleteRequest) (*MutationResult, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.Int64("submission.id", int64(req.SubmissionID)),
		),
	)
	defer span.End()

	res, archive, err := s.delete(ctx, req)
	s.finish(ctx, span, "delete", err, archive)
	return res, err
}

func (s *SubmissionService) delete(ctx context.Context, req DeleteRequest) (_ *MutationResult, _ *domain.CompletedGoal, err error) {
	req.Key = strings.TrimSpace(req.Key)
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return nil, nil, ErrUnauthenticated
	case req.SubmissionID == 0 || req.Key == "":
		return nil, nil, ErrInvalidInput
	}

	release, err := s.claim(ctx, domain.KeyKindDelete, req.UserID, req.SubmissionID, req.Key)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrDuplicateKey) {
			release()
		}
	}()

	projectID, err := s.projectOf(ctx, req.SubmissionID, req.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrAlreadyDeleted
		}
		return nil, nil, err
	}

	var (
		res     *MutationResult
		archive *domain.CompletedGoal
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.LockProject(ctx, tx, projectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAlreadyDeleted
			}
			return fmt.Errorf("lock project: %w", err)
		}
		now := nowFrom(s.Clock)
		sub, err := repo.LockSubmission(ctx, tx, req.SubmissionID, req.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAlreadyDeleted
			}
			return fmt.Errorf("lock submission: %w", err)
		}
		part, err := repo.LockPart(ctx, tx, sub.PartID)
		if err != nil {
			return fmt.Errorf("lock part: %w", err)
		}
		progressDelta := 0
		if part.Counts(sub.CreatedAt) {
			progressDelta = -sub.Quantity
		}
		if err := repo.AdjustPartCounters(ctx, tx, part.ID, progressDelta, -sub.Quantity); err != nil {
			return fmt.Errorf("adjust counters: %w", err)
		}
		if err := repo.DeleteSubmission(ctx, tx, sub.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAlreadyDeleted
			}
			return fmt.Errorf("delete submission: %w", err)
		}
		if err := s.audit(ctx, tx, req.UserID, domain.KeyKindDelete, req.Key, now); err != nil {
			return err
		}
		if archive, err = s.detector().Check(ctx, tx, part.ProjectID); err != nil {
			return fmt.Errorf("completion check: %w", err)
		}
		res, err = mutationResult(ctx, tx, sub.ID, part.ID, archive)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return res, archive, nil
}

// projectOf resolves the project that owns a live submission of userID.
// Submissions never move between parts, nor parts between projects, so the
// lookup runs before the transaction; its locks are then taken project first.
func (s *SubmissionService) projectOf(ctx context.Context, submissionID uint, userID string) (uint, error) {
	sub, err := repo.GetSubmission(ctx, s.DB, submissionID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("submission lookup: %w", err)
	}
	part, err := repo.GetPart(ctx, s.DB, sub.PartID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("part lookup: %w", err)
	}
	return part.ProjectID, nil
}

// Seen reports whether the key was already accepted for the user and kind.
// It backs the replay detection of the HTTP idempotency middleware.
func (s *SubmissionService) Seen(ctx context.Context, userID, kind, key string) (bool, error) {
	return repo.HasProcessedKey(ctx, s.DB, userID, kind, key)
}

// claim takes the short-lived cache marker for the key and checks the audit
// table. The returned func releases the marker. A cache outage degrades to
// the audit table and the in-transaction unique constraint.
func (s *SubmissionService) claim(ctx context.Context, kind, userID string, target uint, key string) (func(), error) {
	release := func() {}
	if s.Cache != nil {
		marker := cache.MarkerKey(kind, userID, strconv.FormatUint(uint64(target), 10), key)
		ok, err := s.Cache.Claim(ctx, marker, s.keyTTL())
		switch {
		case err != nil:
			logger(ctx).Warn().Err(err).Str("kind", kind).Msg("idempotency cache unavailable")
		case !ok:
			return release, ErrDuplicateKey
		default:
			release = func() {
				if err := s.Cache.Release(context.WithoutCancel(ctx), marker); err != nil {
					logger(ctx).Warn().Err(err).Str("kind", kind).Msg("release idempotency claim")
				}
			}
		}
	}

	seen, err := repo.HasProcessedKey(ctx, s.DB, userID, kind, key)
	if err != nil {
		release()
		return func() {}, fmt.Errorf("processed key lookup: %w", err)
	}
	if seen {
		return release, ErrDuplicateKey
	}
	return release, nil
}

func (s *SubmissionService) audit(ctx context.Context, tx *gorm.DB, userID, kind, key string, now time.Time) error {
	if err := repo.RecordProcessedKey(ctx, tx, userID, kind, key, now, s.auditKeep()); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("record processed key: %w", err)
	}
	return nil
}

// finish records metrics and span status, and publishes the completion event
// once the transaction has committed.
func (s *SubmissionService) finish(ctx context.Context, span trace.Span, op string, err error, archive *domain.CompletedGoal) {
	observe(op, err)
	switch {
	case err == nil:
	case IsDuplicate(err):
		span.SetAttributes(attribute.Bool("duplicate", true))
		logger(ctx).Debug().Err(err).Str("op", op).Msg("duplicate suppressed")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if err != nil || archive == nil {
		return
	}

	completionsTotal.Inc()
	span.SetAttributes(attribute.Int64("archive.id", int64(archive.ID)))
	logger(ctx).Info().
		Uint("project_id", archive.ProjectID).
		Uint("archive_id", archive.ID).
		Msg("goal completed")

	if s.Events == nil {
		return
	}
	snap, derr := archive.Snapshot()
	if derr != nil {
		logger(ctx).Error().Err(derr).Uint("archive_id", archive.ID).Msg("decode snapshot for event")
		return
	}
	ev := events.GoalCompleted{
		ArchiveID:     archive.ID,
		ProjectID:     archive.ProjectID,
		ProjectName:   archive.ProjectName,
		CompletedDate: archive.CompletedDate,
		Contributors:  snap.TotalsByUser(),
	}
	if perr := s.Events.PublishGoalCompleted(context.WithoutCancel(ctx), ev); perr != nil {
		logger(ctx).Error().Err(perr).Uint("archive_id", archive.ID).Msg("publish goal completed")
	}
}

func mutationResult(ctx context.Context, tx *gorm.DB, subID, partID uint, archive *domain.CompletedGoal) (*MutationResult, error) {
	after, err := repo.GetPart(ctx, tx, partID)
	if err != nil {
		return nil, fmt.Errorf("reload part: %w", err)
	}
	res := &MutationResult{
		SubmissionID: subID,
		PartID:       after.ID,
		Progress:     after.Progress,
		Goal:         after.Goal,
	}
	if archive != nil {
		res.Completed = true
		res.ArchiveID = &archive.ID
	}
	return res, nil
}

func (s *SubmissionService) detector() *CompletionDetector {
	if s.Detector != nil {
		return s.Detector
	}
	return &CompletionDetector{Clock: s.Clock}
}

func (s *SubmissionService) keyTTL() time.Duration {
	if s.KeyTTL > 0 {
		return s.KeyTTL
	}
	return DefaultKeyTTL
}

func (s *SubmissionService) duplicateWindow() time.Duration {
	if s.DuplicateWindow > 0 {
		return s.DuplicateWindow
	}
	return DefaultDuplicateWindow
}

func (s *SubmissionService) editDuplicateWindow() time.Duration {
	if s.EditDuplicateWindow > 0 {
		return s.EditDuplicateWindow
	}
	return DefaultEditDuplicateWindow
}

func (s *SubmissionService) auditKeep() int {
	if s.AuditKeep > 0 {
		return s.AuditKeep
	}
	return DefaultAuditKeep
}

// logger returns the request-scoped logger carried by ctx, or the global one.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
