package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createActivityTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_activity_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS clicks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					referral_code VARCHAR(20) NOT NULL,
					ip_address VARCHAR(64) NOT NULL,
					user_agent TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_clicks_ip_code_created ON clicks(ip_address, referral_code, created_at);
				CREATE INDEX idx_clicks_user_id ON clicks(user_id);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS earnings (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					amount NUMERIC(20, 2) NOT NULL,
					type VARCHAR(20) NOT NULL,
					status VARCHAR(20) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_earnings_user_id ON earnings(user_id);

				CREATE TABLE IF NOT EXISTS shares (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					platform VARCHAR(50) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS user_stats (
					user_id UUID PRIMARY KEY REFERENCES profiles(id),
					total_earned NUMERIC(20, 2) NOT NULL DEFAULT 0,
					completed_offers BIGINT NOT NULL DEFAULT 0,
					current_streak BIGINT NOT NULL DEFAULT 0,
					clicks BIGINT NOT NULL DEFAULT 0,
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS offers (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					title VARCHAR(255) NOT NULL,
					description TEXT,
					category VARCHAR(50),
					reward NUMERIC(20, 2) NOT NULL,
					url TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS offer_clicks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES profiles(id),
					offer_id UUID NOT NULL REFERENCES offers(id),
					reward NUMERIC(20, 2) NOT NULL,
					ip_address VARCHAR(64),
					user_agent TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_offer_clicks_user_id ON offer_clicks(user_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS short_urls (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					short_code VARCHAR(16) NOT NULL UNIQUE,
					long_url TEXT NOT NULL,
					referral_code VARCHAR(20) NOT NULL,
					clicks BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS referral_clicks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					short_code VARCHAR(16) NOT NULL,
					referral_code VARCHAR(20) NOT NULL,
					user_agent TEXT,
					ip_address VARCHAR(64),
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_referral_clicks_short_code ON referral_clicks(short_code);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return dropTables(tx, "referral_clicks", "short_urls", "offer_clicks", "offers",
				"user_stats", "shares", "earnings", "clicks")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createActivityTablesMigration())
}
