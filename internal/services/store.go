package services

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds a row-level write lock on mysql/postgres. SQLite has no
// FOR UPDATE syntax and serializes writers at the connection level, which
// already gives the single-writer-per-request guarantee there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
