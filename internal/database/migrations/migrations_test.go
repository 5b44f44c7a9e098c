package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsRegisteredInOrder(t *testing.T) {
	ids := IDs()
	assert.Equal(t, []string{
		"000001_create_accounts_table",
		"000002_create_payment_tables",
		"000003_create_activity_tables",
		"000004_create_payout_tables",
		"000005_seed_offers",
	}, ids)

	for _, m := range migrationsList {
		assert.NotNil(t, m.Migrate, m.ID)
		assert.NotNil(t, m.Rollback, m.ID)
	}
}
