package errors

import (
	"errors"
)

var (
	ErrEmptyAuth          = errors.New("missing authorization")
	ErrEmptySubject       = errors.New("missing subject")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrNotAuthenticated   = errors.New("no authenticated session")
	ErrDuplicateItem      = errors.New("item already exists")
	ErrItemNotFound       = errors.New("item not found")
	ErrWishlistFull       = errors.New("guest wishlist is full")
	ErrCartFull           = errors.New("guest cart is full")
	ErrMissingContext     = errors.New("exactly one of productId or serviceId must be set")
	ErrGuestOnly          = errors.New("operation applies to guest data only")
	ErrStoreClosed        = errors.New("write queue is closed")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrUpstreamUnexpected = errors.New("unexpected upstream response")
)
