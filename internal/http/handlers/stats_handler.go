// Statistics HTTP handlers.
//
//   - GET /completed/recent
//   - GET /parts/{id}/submissions/mine
//   - GET /me/contributions
//   - GET /contributions
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RecentlyCompleted godoc
// @ID          recentlyCompleted
// @Summary     Recently completed projects
// @Description Archives inside the recent-completion window, newest first.
// @Tags        Stats
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   services.Archive
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /completed/recent [get]
func (h *Handlers) RecentlyCompleted(c *gin.Context) {
	items, err := h.stats.RecentlyCompleted(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// MySubmissions godoc
// @ID          mySubmissions
// @Summary     Own submissions of the current cycle
// @Description The caller's submissions for a part since its cycle started, newest first. Used to offer edit and delete.
// @Tags        Stats
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Part ID"  minimum(1)
// @Success     200  {array}   domain.Submission
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /parts/{id}/submissions/mine [get]
func (h *Handlers) MySubmissions(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	uid, _ := identity(c)
	items, err := h.stats.UserSubmissions(c.Request.Context(), uid, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// MyContributions godoc
// @ID          myContributions
// @Summary     Own lifetime contributions
// @Tags        Stats
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.ContributionReport
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me/contributions [get]
func (h *Handlers) MyContributions(c *gin.Context) {
	uid, _ := identity(c)
	rep, err := h.stats.UserContributions(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// GroupContributions godoc
// @ID          groupContributions
// @Summary     Everyone's lifetime contributions
// @Tags        Stats
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.ContributionReport
// @Router      /contributions [get]
func (h *Handlers) GroupContributions(c *gin.Context) {
	rep, err := h.stats.GroupContributions(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
