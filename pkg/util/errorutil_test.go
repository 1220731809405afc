package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))

	wrapped := fmt.Errorf("conversation k: %w", ErrRecordNotFound)
	de := ToDomainError(wrapped)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)

	de = ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)

	forbidden := NewForbidden("nope")
	assert.Same(t, forbidden, error(ToDomainError(fmt.Errorf("ctx: %w", forbidden))))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewConflict("taken", nil), CodeConflict))
	assert.True(t, HasCode(NewNotFound("message", nil), CodeNotFound))
	assert.True(t, errors.Is(NewNotFound("message", nil), ErrRecordNotFound))
	assert.False(t, HasCode(NewValidationError("bad", nil), CodeForbidden))
}
