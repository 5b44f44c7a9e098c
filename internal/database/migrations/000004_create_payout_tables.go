package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createPayoutTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_payout_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS donations (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					tx_hash VARCHAR(66) NOT NULL UNIQUE,
					network VARCHAR(30) NOT NULL,
					currency VARCHAR(10) NOT NULL,
					amount NUMERIC(36, 18) NOT NULL,
					from_address VARCHAR(42),
					block_number BIGINT,
					confirmations BIGINT NOT NULL DEFAULT 0,
					status VARCHAR(20) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_donations_status ON donations(status);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS withdrawals (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
					payment_method VARCHAR(50) NOT NULL,
					payment_details JSONB,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					failure_reason TEXT,
					processed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_withdrawals_user_id ON withdrawals(user_id);
				CREATE INDEX idx_withdrawals_status ON withdrawals(status);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return dropTables(tx, "withdrawals", "donations")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPayoutTablesMigration())
}
