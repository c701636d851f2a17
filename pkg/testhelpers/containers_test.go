//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/database"
)

func TestGetTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"gl_entries", "documents", "document_items", "document_item_links"} {
		var exists bool
		err := testDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}
}

func TestScopedContext(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := ScopedContext(t, testDB.DB)

	q, err := database.QuerierFrom(ctx)
	require.NoError(t, err)

	var one int
	require.NoError(t, q.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
