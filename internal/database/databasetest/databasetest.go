// Package databasetest opens migrated in-memory SQLite databases for tests.
package databasetest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"meal-photo-backend/internal/database"
)

// New returns a migrated, isolated in-memory database closed at test end.
func New(t testing.TB) *database.Client {
	t.Helper()

	// Open pins SQLite to one connection, so each client owns a private
	// in-memory database.
	client, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, database.NewMigrator(client).Run())
	return client
}
