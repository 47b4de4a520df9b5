// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries one of these codes in ErrorResponse.Code.
// Clients branch on the code, never on the message. Duplicate answers also
// set ErrorResponse.Duplicate so clients can treat them as benign without
// knowing every code.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "duplicate",
//	  "message": "identical submission received moments ago",
//	  "duplicate": true
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidQuantity = "invalid_quantity"
	ErrCodePartInactive    = "part_inactive"
	ErrCodeNoGoals         = "no_goals"
	ErrCodeDuplicate       = "duplicate"
	ErrCodeDatabase        = "database_failure"
)
