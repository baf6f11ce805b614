package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"set_not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"set not found"`
	// Optional structured context, e.g. the accepted sort fields
	Details any `json:"details,omitempty" swaggertype:"object"`
}

// SortFieldDetails accompanies invalid_sort_field errors.
type SortFieldDetails struct {
	Field   string   `json:"field" example:"password"`
	Allowed []string `json:"allowed" example:"createdAt,price,title"`
}

// fail aborts the request with a structured error. Server errors (>=500)
// are logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

func failWith(c *gin.Context, status int, code, msg string, details any) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
		Details:   details,
	})
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service error into its HTTP status and code.
// A hidden set answers exactly like a missing one. Unknown errors become a
// generic 500; their text is logged, never returned.
func failErr(c *gin.Context, err error) {
	var accErr *services.AccessError
	if errors.As(err, &accErr) {
		switch accErr.Code {
		case services.AccessInvalidSetID, services.AccessInvalidUserID:
			fail(c, http.StatusBadRequest, ErrCodeInvalidID, accErr.Msg)
		case services.AccessSetNotFound, services.AccessSetHidden:
			fail(c, http.StatusNotFound, ErrCodeSetNotFound, services.ErrSetNotFound.Error())
		case services.AccessUserNotFound:
			fail(c, http.StatusNotFound, ErrCodeUserNotFound, services.ErrUserNotFound.Error())
		default:
			failInternal(c, err)
		}
		return
	}

	var sortErr *query.InvalidSortFieldError
	if errors.As(err, &sortErr) {
		failWith(c, http.StatusBadRequest, ErrCodeInvalidSortField, sortErr.Error(),
			SortFieldDetails{Field: sortErr.Field, Allowed: sortErr.Allowed})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if m.passMessage {
				msg = err.Error()
			}
			fail(c, m.status, m.code, msg)
			return
		}
	}
	failInternal(c, err)
}

func failInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// errorTable maps sentinel errors to responses. passMessage returns the
// wrapped text, which names the offending field.
var errorTable = []struct {
	err         error
	status      int
	code        string
	passMessage bool
}{
	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeValidation, true},
	{services.ErrSelfSubscribe, http.StatusBadRequest, ErrCodeSelfSubscribe, false},

	{services.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized, false},
	{services.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized, false},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, false},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, false},

	{services.ErrSetNotFound, http.StatusNotFound, ErrCodeSetNotFound, false},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeUserNotFound, false},
	{services.ErrCardNotFound, http.StatusNotFound, ErrCodeNotFound, false},
	{services.ErrCategoryNotFound, http.StatusNotFound, ErrCodeNotFound, false},
	{services.ErrTagNotFound, http.StatusNotFound, ErrCodeNotFound, false},
	{services.ErrNotSubscribed, http.StatusNotFound, ErrCodeNotFound, false},

	{services.ErrDuplicateName, http.StatusConflict, ErrCodeDuplicateName, false},
	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken, false},
	{services.ErrNotPurchasable, http.StatusConflict, ErrCodeNotPurchasable, false},
	{services.ErrOwnSet, http.StatusConflict, ErrCodeOwnSet, false},
	{services.ErrAlreadyPurchased, http.StatusConflict, ErrCodeAlreadyPurchased, false},
	{services.ErrAlreadySubscribed, http.StatusConflict, ErrCodeAlreadySubscribed, false},
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
