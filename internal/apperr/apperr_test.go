package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("collection service: %w", NotFound("Collection"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Collection not found", PublicMessage(err))
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("pq: connection refused on 10.0.0.5"))

	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInternalKeepsApplicationErrors(t *testing.T) {
	orig := Validation("name is required")
	assert.Same(t, orig, Internal(orig))
	assert.Nil(t, Internal(nil))
}

func TestForeignErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(sql.ErrConnDone))
	assert.Equal(t, "Internal server error", PublicMessage(sql.ErrConnDone))
}

func TestImageFetchFailedUnwrapsCause(t *testing.T) {
	cause := errors.New("blocked host")
	err := ImageFetchFailed(cause)

	assert.True(t, errors.Is(err, ErrImageFetchFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Failed to fetch image", PublicMessage(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "csrf_mismatch", KindCsrfMismatch.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
