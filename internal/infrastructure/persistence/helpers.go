package persistence

import (
	"errors"
	"strings"

	"github.com/erp/stockcore/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm sentinel errors onto domain errors
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return shared.ErrAlreadyExists
	}
	return err
}

// isUniqueViolation recognises unique constraint errors of postgres and
// sqlite when gorm's error translation is off
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// paginate applies offset and limit of a normalized filter
func paginate(filter shared.Filter) func(db *gorm.DB) *gorm.DB {
	f := filter.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(f.Offset()).Limit(f.PageSize)
	}
}

// orderBy applies a whitelisted sort column and direction
func orderBy(filter shared.Filter, allowed map[string]bool, defaultField string) func(db *gorm.DB) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	dir := ValidateSortOrder(filter.OrderDir)
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(field + " " + dir)
	}
}

// casMiss distinguishes a lost version race from a missing row after a
// guarded update touched nothing
func casMiss(db *gorm.DB, model any, id any) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}
