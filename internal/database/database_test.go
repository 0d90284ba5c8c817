package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource_FindsAllMigrations(t *testing.T) {
	migrations, err := MigrationSource().FindMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 6)

	ids := make([]string, 0, len(migrations))
	for _, m := range migrations {
		ids = append(ids, m.Id)
		assert.NotEmpty(t, m.Up, m.Id)
		assert.NotEmpty(t, m.Down, m.Id)
	}
	assert.Equal(t, []string{
		"0001_kyc.sql",
		"0002_kyc_reason_codes_seed.sql",
		"0003_reports.sql",
		"0004_report_types_seed.sql",
		"0005_support_tickets.sql",
		"0006_support_ticket_types_seed.sql",
	}, ids)
}

func TestMigrations_SeedEveryTicketTypeTheRequestSchemaAccepts(t *testing.T) {
	raw, err := migrationFiles.ReadFile("migrations/0006_support_ticket_types_seed.sql")
	require.NoError(t, err)
	for _, code := range []string{"general", "technical", "billing", "account", "payout", "payoutIssue"} {
		assert.Contains(t, string(raw), "('"+code+"')")
	}
}

func TestMigrations_HistoryAllowsInitialRow(t *testing.T) {
	raw, err := migrationFiles.ReadFile("migrations/0005_support_tickets.sql")
	require.NoError(t, err)
	sql := string(raw)
	assert.Contains(t, sql, "from_status              VARCHAR(30),")
	assert.Contains(t, sql, "changed_by_admin_user_id INTEGER,")
	assert.False(t, strings.Contains(sql, "from_status              VARCHAR(30) NOT NULL"))
}
