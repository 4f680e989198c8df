package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copperbear/storefront/internal/config"
	inErrors "github.com/copperbear/storefront/internal/errors"
)

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      *StatusError
		target   error
		expected bool
	}{
		{
			name:     "given 409 should match duplicate item",
			err:      &StatusError{StatusCode: http.StatusConflict},
			target:   inErrors.ErrDuplicateItem,
			expected: true,
		},
		{
			name:     "given DUPLICATE_ITEM code should match regardless of status",
			err:      &StatusError{StatusCode: http.StatusBadRequest, Code: "DUPLICATE_ITEM"},
			target:   inErrors.ErrDuplicateItem,
			expected: true,
		},
		{
			name:     "given 404 should match item not found",
			err:      &StatusError{StatusCode: http.StatusNotFound},
			target:   inErrors.ErrItemNotFound,
			expected: true,
		},
		{
			name:     "given ITEM_NOT_FOUND code should match regardless of status",
			err:      &StatusError{StatusCode: http.StatusBadRequest, Code: "ITEM_NOT_FOUND"},
			target:   inErrors.ErrItemNotFound,
			expected: true,
		},
		{
			name:     "given 401 should match not authenticated",
			err:      &StatusError{StatusCode: http.StatusUnauthorized},
			target:   inErrors.ErrNotAuthenticated,
			expected: true,
		},
		{
			name:     "given 500 should match nothing",
			err:      &StatusError{StatusCode: http.StatusInternalServerError},
			target:   inErrors.ErrDuplicateItem,
			expected: false,
		},
		{
			name:     "given 409 should not match item not found",
			err:      &StatusError{StatusCode: http.StatusConflict},
			target:   inErrors.ErrItemNotFound,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errors.Is(tt.err, tt.target))
		})
	}
}

func TestStatusErrorClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf(
		"failed adding wishlist item with error=%w",
		&StatusError{StatusCode: http.StatusConflict, Code: "DUPLICATE_ITEM"},
	)
	assert.ErrorIs(t, err, inErrors.ErrDuplicateItem)
}

func TestMalformedSuccessBodyIsUpstreamUnexpected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.Upstream{BaseURL: server.URL, TimeoutSeconds: 5})
	_, err := client.FetchCart(context.Background(), "token")
	assert.ErrorIs(t, err, inErrors.ErrUpstreamUnexpected)
}

func TestStatusErrorMessage(t *testing.T) {
	withCode := &StatusError{StatusCode: 409, Code: "DUPLICATE_ITEM", Message: "already saved"}
	assert.Contains(t, withCode.Error(), "DUPLICATE_ITEM")
	assert.Contains(t, withCode.Error(), "409")

	withoutCode := &StatusError{StatusCode: 500, Message: "boom"}
	assert.Contains(t, withoutCode.Error(), "500")
}
