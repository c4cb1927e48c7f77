package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence/models"
)

func TestList(t *testing.T) {
	names, err := List()
	require.NoError(t, err)

	assert.Equal(t, []string{"000001_create_tenants", "000002_create_tenant_configs"}, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := List()
	require.NoError(t, err)

	for _, name := range names {
		down, err := fs.ReadFile(migrations, migrationsDir+"/"+name+".down.sql")
		require.NoError(t, err, "missing down migration for %s", name)
		assert.Contains(t, strings.ToUpper(string(down)), "DROP TABLE")
	}
}

func TestTenantsMigrationMatchesStoreColumns(t *testing.T) {
	up, err := fs.ReadFile(migrations, migrationsDir+"/000001_create_tenants.up.sql")
	require.NoError(t, err)

	columns := append([]string{"usage_period", "usage_last_reset_date"}, models.TenantMutableColumns...)
	for _, column := range models.UsageColumns {
		columns = append(columns, column)
	}
	for _, column := range columns {
		assert.Contains(t, string(up), column)
	}
	assert.Contains(t, string(up), "CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_slug")
}
