package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createAccountsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_accounts_table",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

				CREATE TABLE IF NOT EXISTS accounts (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255),
					google_id VARCHAR(255) UNIQUE,
					totp_secret VARCHAR(64),
					totp_enabled BOOLEAN NOT NULL DEFAULT FALSE,
					is_admin BOOLEAN NOT NULL DEFAULT FALSE,
					last_login_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			// Profiles share the account's id
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS profiles (
					id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
					username VARCHAR(50) UNIQUE,
					referral_code VARCHAR(20) NOT NULL UNIQUE,
					earnings NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (earnings >= 0),
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS referrals (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					referrer_id UUID REFERENCES profiles(id),
					referred_id UUID NOT NULL UNIQUE REFERENCES profiles(id),
					referral_code_used VARCHAR(20),
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_referrals_referrer_id ON referrals(referrer_id);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return dropTables(tx, "referrals", "profiles", "accounts")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createAccountsTableMigration())
}
