// Package handlers implements the HTTP endpoints of the flashcard
// marketplace on top of the services package.
//
// Every error response carries one of the codes below. Generic codes mirror
// the HTTP status; domain codes let clients branch on business outcomes that
// share a status (several conflicts are all 409).
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_purchased",
//	  "message": "set already purchased"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"

	// Domain-specific:
	ErrCodeInvalidID          = "invalid_id"
	ErrCodeInvalidSortField   = "invalid_sort_field"
	ErrCodeValidation         = "validation_failed"
	ErrCodeSetNotFound        = "set_not_found"
	ErrCodeUserNotFound       = "user_not_found"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeEmailTaken         = "email_taken"
	ErrCodeDuplicateName      = "duplicate_name"
	ErrCodeNotPurchasable     = "not_purchasable"
	ErrCodeOwnSet             = "own_set"
	ErrCodeAlreadyPurchased   = "already_purchased"
	ErrCodeSelfSubscribe      = "self_subscribe"
	ErrCodeAlreadySubscribed  = "already_subscribed"
)
