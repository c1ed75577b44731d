package telemetry

import (
	"strings"

	"gorm.io/gorm"
)

// gormHook runs around every statement kind gorm executes
type gormHook struct {
	prefix string
	before func(db *gorm.DB)
	after  func(db *gorm.DB, operation string)
}

// register installs the hook as before/after callbacks of the create,
// query, update, delete, row and raw processors
func (h gormHook) register(db *gorm.DB) error {
	cb := db.Callback()
	processors := []struct {
		name      string
		operation string
		before    func(name string, fn func(*gorm.DB)) error
		after     func(name string, fn func(*gorm.DB)) error
	}{
		{"create", "INSERT", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", "SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", "UPDATE", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", "DELETE", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", "", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", "", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, p := range processors {
		if h.before != nil {
			if err := p.before(h.prefix+":before_"+p.name, h.before); err != nil {
				return err
			}
		}
		if h.after != nil {
			operation := p.operation
			after := h.after
			if err := p.after(h.prefix+":after_"+p.name, func(db *gorm.DB) {
				op := operation
				if op == "" {
					op = detectOperationType(db.Statement.SQL.String())
				}
				after(db, op)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectOperationType derives the SQL verb of a raw statement
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
