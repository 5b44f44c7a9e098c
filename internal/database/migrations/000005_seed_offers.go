package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func seedOffersMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_seed_offers",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				INSERT INTO offers (title, description, category, reward, url) VALUES
					('Holiday survey', 'Answer a short survey about your holiday plans', 'survey', 1.50, 'https://offers.santaspot.app/survey'),
					('Gift app install', 'Install and open the gift list app', 'app', 3.00, 'https://offers.santaspot.app/gift-app'),
					('Winter newsletter', 'Subscribe to the winter deals newsletter', 'signup', 0.75, 'https://offers.santaspot.app/newsletter');
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DELETE FROM offers WHERE url LIKE 'https://offers.santaspot.app/%'`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, seedOffersMigration())
}
