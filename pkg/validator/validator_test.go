package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginForm struct {
	Identifier string `validate:"required"`
	Password   string `validate:"required,min=8"`
}

func TestValidate_OK(t *testing.T) {
	err := Validate(loginForm{Identifier: "ana", Password: "Secret123"})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(loginForm{Password: "Secret123"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Fields(), "Identifier")
	assert.Equal(t, "is required", valErr.Fields()["Identifier"])
}

func TestValidate_MinLength(t *testing.T) {
	err := Validate(loginForm{Identifier: "ana", Password: "short"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Error(), "Password")
	assert.Contains(t, valErr.Fields()["Password"], "at least 8")
}
