package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("Invalid input", nil), http.StatusBadRequest},
		{Auth("Invalid credentials"), http.StatusUnauthorized},
		{Forbidden("Forbidden"), http.StatusForbidden},
		{NotFound("User not found"), http.StatusNotFound},
		{Conflict("Email already registered", 0), http.StatusConflict},
		{Conflict("Already following this user", http.StatusBadRequest), http.StatusBadRequest},
		{&Error{Message: "boom"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatus(), tc.err.Message)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	err := fmt.Errorf("follow: %w", NotFound("User not found"))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, appErr.Kind)
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindNotFound))
}
