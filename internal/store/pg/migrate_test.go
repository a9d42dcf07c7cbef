package pg

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/posgate/migrations/postgres"
)

func TestParseMigrations_OrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("SELECT 2;")},
		"m/0001_a.sql": {Data: []byte("SELECT 1;")},
		"m/README.md":  {Data: []byte("ignored")},
		"m/x_bad.sql":  {Data: []byte("ignored")},
		"m/0010_c.sql": {Data: []byte("SELECT 10;")},
	}
	got, err := ParseMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int{1, 2, 10}, []int{got[0].Version, got[1].Version, got[2].Version})
	require.Equal(t, "a", got[0].Name)
	require.Equal(t, "SELECT 10;", got[2].SQL)
}

func TestParseMigrations_Embedded(t *testing.T) {
	got, err := ParseMigrations(migrations.PostgresFS, migrations.PostgresDir)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i, m := range got {
		require.Equal(t, i+1, m.Version)
		require.NotEmpty(t, m.SQL)
	}
}
