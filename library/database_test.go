package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")

	db, err := NewDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestNestedDirectoryIsCreated(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "a", "b", "lib.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}

func TestGetBookNotFound(t *testing.T) {
	db := tempDB(t)
	_, err := db.GetBook(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, Retryable(err))
}

func TestSchemaRejectsNegativeAvailable(t *testing.T) {
	db := tempDB(t)
	_, err := db.db.Exec(`INSERT INTO books(title,author,total_copies,available_copies) VALUES('T','A',1,-1)`)
	assert.Error(t, err)

	_, err = db.db.Exec(`INSERT INTO books(title,author,total_copies,available_copies) VALUES('T','A',1,2)`)
	assert.Error(t, err)
}

func TestSearchBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBook(t, "Dune", 1)
	f.addBook(t, "Emma", 1)

	res, err := f.db.SearchBooks(ctx, "dun")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Dune", res[0].Title)

	res, err = f.db.SearchBooks(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearchBooksMatchesWildcardsLiterally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addBook(t, "100% Cotton", 1)
	f.addBook(t, "snake_case", 1)
	f.addBook(t, "snakeXcase", 1)

	res, err := f.db.SearchBooks(ctx, "%")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "100% Cotton", res[0].Title)

	res, err = f.db.SearchBooks(ctx, "snake_")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "snake_case", res[0].Title)

	res, err = f.db.SearchBooks(ctx, `\`)
	require.NoError(t, err)
	assert.Empty(t, res)
}
