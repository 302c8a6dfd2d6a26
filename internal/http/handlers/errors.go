// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case, stable, and returned in the ErrorResponse
// envelope next to a human-readable message. Generic codes mirror HTTP
// status semantics; domain codes name the failed operation. Clients branch
// on the code, never on the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "insight not found"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeChatFailed          = "chat_failed"
	ErrCodeCreateFailed        = "create_failed"
	ErrCodeListFailed          = "list_failed"
	ErrCodeUpdateFailed        = "update_failed"
	ErrCodePersistenceDisabled = "persistence_disabled"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
