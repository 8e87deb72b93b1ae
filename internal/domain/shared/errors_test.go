package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewDomainError("NOT_FOUND", "subscription not found for tenant")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPersistence))
}

func TestWrap_KeepsCodeAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrPersistence, cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Storage is unavailable: connection refused", err.Error())
}

func TestDomainError_SurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("load state: %w", Wrap(ErrNotFound, errors.New("record not found")))

	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.True(t, errors.Is(err, ErrNotFound))
}
