// Package handlers exposes the REST endpoints of the production goals API.
//
// Handlers are transport-thin: they bind and validate the request shape,
// resolve the caller identity and idempotency key, call a service, and
// translate the outcome with ok/failErr.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/http/middleware"
	"github.com/tbourn/go-production-goals/internal/services"
)

//
// Service contracts (context-aware)
//

// SubmissionService applies contributions and their corrections.
type SubmissionService interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResult, error)
	Edit(ctx context.Context, req services.EditRequest) (*services.MutationResult, error)
	Delete(ctx context.Context, req services.DeleteRequest) (*services.MutationResult, error)
}

// ProjectService implements the admin operations and project detail.
type ProjectService interface {
	CreateProject(ctx context.Context, in services.ProjectInput) (*services.ProjectDetail, error)
	AddPart(ctx context.Context, projectID uint, in services.PartInput) (*domain.Part, error)
	StartProject(ctx context.Context, projectID uint) (int64, error)
	DeleteProject(ctx context.Context, projectID uint) error
	DeleteArchive(ctx context.Context, archiveID uint) error
	Get(ctx context.Context, projectID uint) (*services.ProjectDetail, error)
}

// StatsService serves the read-only views.
type StatsService interface {
	UnfulfilledProjects(ctx context.Context) ([]services.ProjectSummary, error)
	RecentlyCompleted(ctx context.Context) ([]services.Archive, error)
	ProjectArchives(ctx context.Context, projectID uint) ([]services.Archive, error)
	UserContributions(ctx context.Context, userID string) (*services.ContributionReport, error)
	GroupContributions(ctx context.Context) (*services.ContributionReport, error)
	TopContributors(ctx context.Context, projectID uint, limit int) ([]services.Contributor, error)
	UserSubmissions(ctx context.Context, userID string, partID uint) ([]domain.Submission, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	subs     SubmissionService
	projects ProjectService
	stats    StatsService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(subs SubmissionService, projects ProjectService, stats StatsService) *Handlers {
	return &Handlers{subs: subs, projects: projects, stats: stats}
}

// identity returns the caller set by middleware.Auth. An empty user id lets
// the service answer ErrUnauthenticated.
func identity(c *gin.Context) (userID, username string) {
	userID = c.GetString("userID")
	username = c.GetString("username")
	if username == "" {
		username = userID
	}
	return userID, username
}

// idempotencyKey picks the key for a mutation. A key in the body wins over
// the Idempotency-Key header. fromHeader reports whether the header supplied
// the chosen key.
func idempotencyKey(c *gin.Context, body string) (key string, fromHeader bool) {
	header, ok := middleware.GetIdempotencyKey(c)
	if !ok {
		header = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if body = strings.TrimSpace(body); body != "" {
		return body, body == header
	}
	return header, header != ""
}

// replayed reports whether the middleware already recognized the chosen
// key. Only header keys are looked up there.
func replayed(c *gin.Context, fromHeader bool) bool {
	return fromHeader && middleware.IsReplay(c)
}
