// Package migrations holds the versioned schema. Each file registers one migration from init.
package migrations

import (
	"fmt"
	"sort"

	"github.com/go-gormigrate/gormigrate/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationsList holds all migrations
var migrationsList []*gormigrate.Migration

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	sorted := make([]*gormigrate.Migration, len(migrationsList))
	copy(sorted, migrationsList)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return gormigrate.New(db, gormigrate.DefaultOptions, sorted)
}

// RunMigrations runs all pending migrations
func RunMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := newMigrator(db).Migrate(); err != nil {
		return fmt.Errorf("could not migrate: %w", err)
	}
	log.Info("migrations ran successfully", zap.Int("count", len(migrationsList)))
	return nil
}

// RollbackLast undoes the most recently applied migration
func RollbackLast(db *gorm.DB, log *zap.Logger) error {
	if err := newMigrator(db).RollbackLast(); err != nil {
		return fmt.Errorf("could not roll back: %w", err)
	}
	log.Info("rolled back last migration")
	return nil
}

// IDs lists the registered migration IDs in order
func IDs() []string {
	ids := make([]string, 0, len(migrationsList))
	for _, m := range migrationsList {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

func dropTables(tx *gorm.DB, tables ...string) error {
	for _, table := range tables {
		if err := tx.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
