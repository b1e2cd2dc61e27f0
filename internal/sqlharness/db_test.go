package sqlharness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersSchema = `
CREATE TABLE users (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT
);
CREATE TABLE orders (
	id      INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(id),
	total   INTEGER NOT NULL
);
`

// writeFile writes content to a temp file and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite3", db.Driver())
	require.NoError(t, db.SQL().Ping())
}

func TestOpen_FileCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestForT_IsolatedPerCall(t *testing.T) {
	ctx := context.Background()

	a := ForT(t)
	require.NoError(t, a.Exec(ctx, "CREATE TABLE t (x INTEGER)"))
	require.NoError(t, a.Exec(ctx, "INSERT INTO t (x) VALUES (1)"))

	b := ForT(t)
	// The second harness must not see the first one's table.
	err := b.Exec(ctx, "INSERT INTO t (x) VALUES (2)")
	require.Error(t, err)
}

func TestApplySchema(t *testing.T) {
	ctx := context.Background()
	db := ForT(t)

	schemaPath := writeFile(t, "schema.sql", usersSchema)
	require.NoError(t, db.ApplySchema(ctx, schemaPath))

	require.NoError(t, db.Exec(ctx, "INSERT INTO users (id, name) VALUES (1, 'alice')"))

	count, err := db.Count(ctx, "users", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplySchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := ForT(t)

	schemaPath := writeFile(t, "schema.sql", usersSchema)
	require.NoError(t, db.ApplySchema(ctx, schemaPath))
	// Second apply of the identical file is a no-op, not a "table exists" error.
	require.NoError(t, db.ApplySchema(ctx, schemaPath))
}

func TestApplySchema_RejectsChangedContent(t *testing.T) {
	ctx := context.Background()
	db := ForT(t)

	first := writeFile(t, "schema.sql", "CREATE TABLE a (x INTEGER);")
	require.NoError(t, db.ApplySchema(ctx, first))

	// Same base name, different content.
	changed := writeFile(t, "schema.sql", "CREATE TABLE b (y INTEGER);")
	err := db.ApplySchema(ctx, changed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different content")
}

func TestApplySchema_MissingFile(t *testing.T) {
	db := ForT(t)
	err := db.ApplySchema(context.Background(), "/nonexistent/schema.sql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	db := ForT(t)

	schemaPath := writeFile(t, "schema.sql", usersSchema)
	require.NoError(t, db.ApplySchema(ctx, schemaPath))

	// orders.user_id references users.id; inserting an orphan must fail.
	err := db.Exec(ctx, "INSERT INTO orders (id, user_id, total) VALUES (1, 999, 100)")
	require.Error(t, err)
}

func TestOpenDriver_SQLite(t *testing.T) {
	db, err := OpenDriver("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite3", db.Driver())
	require.NoError(t, db.Exec(context.Background(), "CREATE TABLE t (x INTEGER)"))
}

func TestOpenDriver_UnknownDriver(t *testing.T) {
	_, err := OpenDriver("no-such-driver", "dsn")
	require.Error(t, err)
}
