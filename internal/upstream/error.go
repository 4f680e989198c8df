package upstream

import (
	"fmt"
	"net/http"

	inErrors "github.com/copperbear/storefront/internal/errors"
)

// StatusError is the structured upstream failure: the HTTP status plus the
// machine-readable code from the response envelope. Callers classify with
// errors.Is against the sentinels below, never by message matching.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream returned status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream returned status=%d message=%s", e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case inErrors.ErrDuplicateItem:
		return e.StatusCode == http.StatusConflict || e.Code == "DUPLICATE_ITEM"
	case inErrors.ErrItemNotFound:
		return e.StatusCode == http.StatusNotFound || e.Code == "ITEM_NOT_FOUND"
	case inErrors.ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}
