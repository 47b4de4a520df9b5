// Submission HTTP handlers.
//
// This file exposes the mutation endpoints:
//   - POST   /submissions        (submit)
//   - PUT    /submissions/{id}   (edit quantity)
//   - DELETE /submissions/{id}   (delete)
//
// Every mutation carries a client-generated idempotency key, in the body or
// in the Idempotency-Key header. Duplicates answer 409 with duplicate=true.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-production-goals/internal/services"
	"github.com/tbourn/go-production-goals/internal/utils"
)

//
// DTOs
//

// SubmitRequest is the JSON payload for a new contribution.
type SubmitRequest struct {
	ProjectID uint `json:"project_id" example:"3"`
	PartID    uint `json:"part_id" example:"12"`
	Quantity  int  `json:"quantity" example:"4"`
	// SubmissionID is the idempotency key for this submission.
	SubmissionID string `json:"submission_id" example:"u1_12_4_1767225600000_6f1c9a52_k2j9x0a1b"`
}

// EditRequest is the JSON payload for changing a submission's quantity.
type EditRequest struct {
	Quantity int `json:"quantity" example:"8"`
	// EditID is the idempotency key for this edit.
	EditID string `json:"edit_id" example:"edit_u1_41_8_1767225600000_k2j9x0a1b"`
}

// DeleteRequest is the optional JSON payload for deleting a submission.
type DeleteRequest struct {
	// DeleteID is the idempotency key for this delete.
	DeleteID string `json:"delete_id" example:"delete_u1_41_1767225600000_k2j9x0a1b"`
}

// bindOptionalJSON binds a body that may be empty.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

//
// Handlers
//

// Submit godoc
// @ID          submit
// @Summary     Record a contribution
// @Description Adds quantity to a part of an active project. Completion of the project is detected in the same transaction.
// @Description The idempotency key may be sent as submission_id or in the Idempotency-Key header; the body wins.
// @Tags        Submissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key"
// @Param       body             body    handlers.SubmitRequest  true  "Submission"
//
// @Success     201  {object}  services.SubmitResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or invalid quantity"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Part not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate or part inactive"
// @Failure     500  {object}  handlers.ErrorResponse  "Database failure"
// @Router      /submissions [post]
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, fromHeader := idempotencyKey(c, req.SubmissionID)
	if replayed(c, fromHeader) {
		duplicate(c, services.ErrDuplicateKey.Error())
		return
	}

	uid, name := identity(c)
	res, err := h.subs.Submit(c.Request.Context(), services.SubmitRequest{
		UserID:    uid,
		Username:  name,
		ProjectID: req.ProjectID,
		PartID:    req.PartID,
		Quantity:  req.Quantity,
		Key:       key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// EditSubmission godoc
// @ID          editSubmission
// @Summary     Change a submission's quantity
// @Description Applies the quantity delta to the part's lifetime total, and to its progress when the submission belongs to the current cycle.
// @Tags        Submissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key"
// @Param       id               path    int     true  "Submission ID"  minimum(1)
// @Param       body             body    handlers.EditRequest  true  "New quantity"
//
// @Success     200  {object}  services.MutationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or invalid quantity"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Submission not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate"
// @Failure     500  {object}  handlers.ErrorResponse  "Database failure"
// @Router      /submissions/{id} [put]
func (h *Handlers) EditSubmission(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a positive integer")
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, fromHeader := idempotencyKey(c, req.EditID)
	if replayed(c, fromHeader) {
		duplicate(c, services.ErrDuplicateKey.Error())
		return
	}

	uid, _ := identity(c)
	res, err := h.subs.Edit(c.Request.Context(), services.EditRequest{
		UserID:       uid,
		SubmissionID: id,
		Quantity:     req.Quantity,
		Key:          key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// DeleteSubmission godoc
// @ID          deleteSubmission
// @Summary     Delete a submission
// @Description Removes the submission and reverses its quantity. Deleting an already-deleted submission is a benign duplicate.
// @Tags        Submissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key"
// @Param       id               path    int     true  "Submission ID"  minimum(1)
// @Param       body             body    handlers.DeleteRequest  false "Delete key"
//
// @Success     200  {object}  services.MutationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate"
// @Failure     500  {object}  handlers.ErrorResponse  "Database failure"
// @Router      /submissions/{id} [delete]
func (h *Handlers) DeleteSubmission(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a positive integer")
		return
	}
	var req DeleteRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, fromHeader := idempotencyKey(c, req.DeleteID)
	if replayed(c, fromHeader) {
		duplicate(c, services.ErrDuplicateKey.Error())
		return
	}

	uid, _ := identity(c)
	res, err := h.subs.Delete(c.Request.Context(), services.DeleteRequest{
		UserID:       uid,
		SubmissionID: id,
		Key:          key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
