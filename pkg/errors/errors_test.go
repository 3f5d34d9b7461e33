package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentity(t *testing.T) {
	clone := Clone(ErrNotFound, "override not found")
	assert.Equal(t, "override not found", clone.Message)
	assert.Equal(t, http.StatusNotFound, clone.Status)
	assert.True(t, errors.Is(clone, ErrNotFound))
	assert.False(t, errors.Is(clone, ErrForbidden))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, "internal server error: boom", appErr.Error())

	wrapped := fmt.Errorf("save: %w", ErrInvalidOverrideSubject)
	assert.Equal(t, ErrInvalidOverrideSubject, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}
