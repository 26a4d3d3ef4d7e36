package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NotFound("user", "abc-123")
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "abc-123")
}

func TestAppError_Unwrap(t *testing.T) {
	err := Unauthorized("invalid credentials")
	assert.ErrorIs(t, err, ErrUnauthorized)

	wrapped := fmt.Errorf("login: %w", err)
	assert.ErrorIs(t, wrapped, ErrUnauthorized)
}

func TestHTTPStatus_AppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("user", "x")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(AlreadyExists("user", "email", "a@b.io")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("missing field")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthorized("nope")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("nope")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Unavailable("store timeout")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal(errors.New("boom"))))
}

func TestHTTPStatus_Sentinels(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(fmt.Errorf("ctx: %w", ErrUnauthorized)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}

func TestWrap(t *testing.T) {
	base := errors.New("base")
	wrapped := Wrap(base, "context")
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "context")
}
