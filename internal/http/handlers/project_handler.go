// Project HTTP handlers.
//
// Read endpoints:
//   - GET /projects/active          (unfulfilled projects)
//   - GET /projects/{id}            (detail with derived status)
//   - GET /projects/{id}/top        (top contributors of the current cycle)
//   - GET /projects/{id}/archives   (completion archives)
//
// Admin endpoints (role admin):
//   - POST   /admin/projects
//   - POST   /admin/projects/{id}/parts
//   - POST   /admin/projects/{id}/start
//   - DELETE /admin/projects/{id}
//   - DELETE /admin/archives/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-production-goals/internal/services"
	"github.com/tbourn/go-production-goals/internal/utils"
)

//
// DTOs
//

// CreateProjectRequest is the JSON payload for a new project.
type CreateProjectRequest struct {
	Name      string   `json:"name" binding:"required,max=255" example:"Mars Rover"`
	URL       string   `json:"url" binding:"omitempty,max=512" example:"https://example.org/rover"`
	Materials []string `json:"materials" example:"PLA,PETG"`
}

// AddPartRequest is the JSON payload for a new part.
type AddPartRequest struct {
	Name            string  `json:"name" binding:"required,max=255" example:"Wheel hub"`
	Goal            int     `json:"goal" binding:"gte=0" example:"40"`
	EstimatedLength float64 `json:"estimated_length" binding:"gte=0" example:"2.4"`
	EstimatedWeight float64 `json:"estimated_weight" binding:"gte=0" example:"7.5"`
}

// pathID parses the :id path parameter, answering 400 when invalid.
func pathID(c *gin.Context) (uint, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
	}
	return id, valid
}

//
// Read handlers
//

// ActiveProjects godoc
// @ID          activeProjects
// @Summary     List unfulfilled projects
// @Description Projects with at least one part in a running goal cycle, with percent complete.
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   services.ProjectSummary
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /projects/active [get]
func (h *Handlers) ActiveProjects(c *gin.Context) {
	items, err := h.stats.UnfulfilledProjects(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetProject godoc
// @ID          getProject
// @Summary     Project detail
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Project ID"  minimum(1)
// @Success     200  {object}  services.ProjectDetail
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /projects/{id} [get]
func (h *Handlers) GetProject(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	d, err := h.projects.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// TopContributors godoc
// @ID          topContributors
// @Summary     Top contributors of the current cycle
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id     path   int  true   "Project ID"      minimum(1)
// @Param       limit  query  int  false  "Maximum entries" minimum(1) maximum(100) default(10)
// @Success     200  {array}   services.Contributor
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /projects/{id}/top [get]
func (h *Handlers) TopContributors(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	limit := utils.ClampedInt(c.Query("limit"), 10, 1, 100)
	items, err := h.stats.TopContributors(c.Request.Context(), id, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// ProjectArchives godoc
// @ID          projectArchives
// @Summary     Completion archives of a project
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Project ID"  minimum(1)
// @Success     200  {array}   services.Archive
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /projects/{id}/archives [get]
func (h *Handlers) ProjectArchives(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	items, err := h.stats.ProjectArchives(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

//
// Admin handlers
//

// CreateProject godoc
// @ID          createProject
// @Summary     Create a project
// @Description Material names are upper-cased and de-duplicated.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateProjectRequest  true  "Project"
// @Success     201   {object}  services.ProjectDetail
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     403   {object}  handlers.ErrorResponse
// @Router      /admin/projects [post]
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
		return
	}
	d, err := h.projects.CreateProject(c.Request.Context(), services.ProjectInput{
		Name:      req.Name,
		URL:       req.URL,
		Materials: req.Materials,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

// AddPart godoc
// @ID          addPart
// @Summary     Add a part to a project
// @Description New parts are inactive until the project is started.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                      true  "Project ID"  minimum(1)
// @Param       body  body      handlers.AddPartRequest  true  "Part"
// @Success     201   {object}  domain.Part
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /admin/projects/{id}/parts [post]
func (h *Handlers) AddPart(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req AddPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required; goal, length and weight must be >= 0")
		return
	}
	p, err := h.projects.AddPart(c.Request.Context(), id, services.PartInput{
		Name:            req.Name,
		Goal:            req.Goal,
		EstimatedLength: req.EstimatedLength,
		EstimatedWeight: req.EstimatedWeight,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// StartProject godoc
// @ID          startProject
// @Summary     Start a goal cycle
// @Description Sets the start date on every part with a positive goal and zeroes their progress.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Project ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "No part has a goal"
// @Router      /admin/projects/{id}/start [post]
func (h *Handlers) StartProject(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if _, err := h.projects.StartProject(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteProject godoc
// @ID          deleteProject
// @Summary     Delete a project
// @Description Removes the project with its materials, parts, submissions and archives.
// @Tags        Admin
// @Security    BearerAuth
// @Param       id   path  int  true  "Project ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/projects/{id} [delete]
func (h *Handlers) DeleteProject(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.projects.DeleteProject(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteArchive godoc
// @ID          deleteArchive
// @Summary     Delete a completion archive
// @Tags        Admin
// @Security    BearerAuth
// @Param       id   path  int  true  "Archive ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/archives/{id} [delete]
func (h *Handlers) DeleteArchive(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.projects.DeleteArchive(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
