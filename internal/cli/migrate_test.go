package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	out, err := execute(t, NewRootCommand(), "migrate", "--storage-driver", "sqlite", "--sqlite-path", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema at version 1")

	// Re-running is a no-op.
	out, err = execute(t, NewRootCommand(), "migrate", "--storage-driver", "sqlite", "--sqlite-path", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema at version 1")
}

func TestMigrateSchemalessDriver(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "migrate", "--storage-driver", "memory", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, `storage driver "memory" has no schema migrations`)
}

func TestMigrateRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "migrate", "--storage-driver", "cassandra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), `unknown storage.driver "cassandra"`)
}
