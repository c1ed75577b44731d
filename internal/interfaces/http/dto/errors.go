package dto

import "net/http"

// Transport-level error codes. Domain errors keep the code they were
// raised with.
const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeTenantRequired   = "TENANT_REQUIRED"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeServiceUnhealthy = "SERVICE_UNHEALTHY"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeServiceUnhealthy: http.StatusServiceUnavailable,

	// Request shape -> 400
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodeTenantRequired:       http.StatusBadRequest,
	"INVALID_INPUT":             http.StatusBadRequest,
	"INVALID_QUANTITY":          http.StatusBadRequest,
	"INVALID_COST":              http.StatusBadRequest,
	"INVALID_LOSS_PERCENTAGE":   http.StatusBadRequest,
	"INVALID_PRODUCT_HIERARCHY": http.StatusBadRequest,
	"REFERENCE_REQUIRED":        http.StatusBadRequest,
	"INVALID_ORDER_NUMBER":      http.StatusBadRequest,
	"INVALID_SKU":               http.StatusBadRequest,
	"INVALID_NAME":              http.StatusBadRequest,
	"INVALID_REASON":            http.StatusBadRequest,
	"INVALID_STATUS":            http.StatusBadRequest,
	"NO_ITEMS":                  http.StatusBadRequest,
	"DUPLICATE_ITEM":            http.StatusBadRequest,

	// Auth
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Missing resources -> 404
	ErrCodeNotFound:  http.StatusNotFound,
	"ITEM_NOT_FOUND": http.StatusNotFound,

	// Reversal misuse and lost races -> 409
	"ALREADY_EXISTS":             http.StatusConflict,
	"ALREADY_REVERSED":           http.StatusConflict,
	"NOT_REVERSIBLE":             http.StatusConflict,
	"CONCURRENT_UPDATE_CONFLICT": http.StatusConflict,
	"CONCURRENCY_CONFLICT":       http.StatusConflict,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Stock and state rules -> 422
	"INSUFFICIENT_STOCK": http.StatusUnprocessableEntity,
	"WOULD_GO_NEGATIVE":  http.StatusUnprocessableEntity,
	"INCOMPLETE_ITEMS":   http.StatusUnprocessableEntity,
	"INVALID_STATE":      http.StatusUnprocessableEntity,
	"PRODUCT_IS_DERIVED": http.StatusUnprocessableEntity,
	"BATCH_OVERFLOW":     http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
