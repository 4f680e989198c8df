package http

import (
	"errors"
	"net/http"

	inErrors "github.com/copperbear/storefront/internal/errors"
)

// StatusCodeOf maps service errors to the status code the local API
// responds with.
func StatusCodeOf(err error) int {
	switch {
	case errors.Is(err, inErrors.ErrNotAuthenticated),
		errors.Is(err, inErrors.ErrTokenInvalid),
		errors.Is(err, inErrors.ErrEmptyAuth),
		errors.Is(err, inErrors.ErrEmptySubject):
		return http.StatusUnauthorized
	case errors.Is(err, inErrors.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, inErrors.ErrDuplicateItem),
		errors.Is(err, inErrors.ErrCartFull),
		errors.Is(err, inErrors.ErrWishlistFull):
		return http.StatusConflict
	case errors.Is(err, inErrors.ErrGuestOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, inErrors.ErrInvalidQuantity),
		errors.Is(err, inErrors.ErrMissingContext):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
