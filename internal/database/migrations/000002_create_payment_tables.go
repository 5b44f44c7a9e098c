package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createPaymentTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_payment_tables",
		Migrate: func(tx *gorm.DB) error {
			// Idempotency ledger: each (reference, effect) is applied once
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS settlements (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					reference VARCHAR(255) NOT NULL,
					effect VARCHAR(32) NOT NULL,
					user_id UUID NOT NULL REFERENCES profiles(id),
					amount NUMERIC(20, 2) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_settlements_reference_effect ON settlements(reference, effect);
				CREATE INDEX idx_settlements_user_id ON settlements(user_id);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS pot (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					total_amount NUMERIC(20, 2) NOT NULL DEFAULT 0,
					is_current BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_pot_single_current ON pot(is_current) WHERE is_current;

				INSERT INTO pot (total_amount, is_current) VALUES (0, TRUE);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS payments (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					payment_intent VARCHAR(255) NOT NULL UNIQUE,
					user_id UUID NOT NULL REFERENCES profiles(id),
					amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
					currency VARCHAR(3) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					failure_reason TEXT,
					completed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_payments_user_id ON payments(user_id);
				CREATE INDEX idx_payments_status_updated ON payments(status, updated_at);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS pot_contributions (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					payment_id UUID NOT NULL UNIQUE REFERENCES payments(id),
					payment_intent VARCHAR(255) NOT NULL,
					amount NUMERIC(20, 2) NOT NULL,
					status VARCHAR(20) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_pot_contributions_user_id ON pot_contributions(user_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS webhook_events (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					provider VARCHAR(20) NOT NULL,
					event_id VARCHAR(255) NOT NULL UNIQUE,
					event_type VARCHAR(100) NOT NULL,
					payload JSONB,
					processed BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return dropTables(tx, "webhook_events", "pot_contributions", "payments", "pot", "settlements")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPaymentTablesMigration())
}
