package apperrors

import "errors"

// Local prechecks. Surfaced inline, no network call is made.
var (
	ErrValidation       = errors.New("validation failed")
	ErrEmptySelection   = errors.New("no seats selected")
	ErrSeatNotAvailable = errors.New("seat not available")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidInput     = errors.New("invalid input")
)

var (
	ErrNoActiveSession     = errors.New("no active reservation session")
	ErrSessionExpired      = errors.New("reservation session expired")
	ErrOperationInProgress = errors.New("operation already in progress")
)

// Collaborator failures. Local state is left untouched when these are returned.
var (
	ErrBackendRejection = errors.New("backend rejected request")
	ErrNetwork          = errors.New("backend unreachable")
)

var (
	ErrPromotionInvalid    = errors.New("promotion invalid")
	ErrPreviewSuperseded   = errors.New("preview superseded by a newer cart state")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInternalServerError = errors.New("internal server error")
)

// ErrCacheMiss 快取中找不到該 key
var ErrCacheMiss = errors.New("cache miss")
