// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase and snake_case. Clients branch on the code and
// show the human-readable error string.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "cooldown",
//	  "error": "Cooldown"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"

	// Domain-specific:
	ErrCodeCooldown         = "cooldown"
	ErrCodePrecondition     = "precondition_not_met"
	ErrCodeTelegram         = "telegram_unavailable"
	ErrCodeInvalidQuestKind = "invalid_quest_kind"
	ErrCodeInvalidAccountID = "invalid_user_id"
)
