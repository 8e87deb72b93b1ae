package persistence

import (
	"errors"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto domain errors. Missing rows become
// ErrNotFound; anything else is a persistence failure.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return shared.Wrap(shared.ErrPersistence, err)
}
