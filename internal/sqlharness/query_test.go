package sqlharness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Found(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	row, err := db.Row(ctx, "users", map[string]any{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), row["id"])
	assert.Equal(t, "bob@example.com", row["email"])
}

func TestRow_NotFound(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	_, err := db.Row(ctx, "users", map[string]any{"name": "carol"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestRow_MultipleMatches(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	// Both seeded users match an empty filter.
	_, err := db.Row(ctx, "users", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultipleRows))
}

func TestRow_InvalidIdentifiers(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	_, err := db.Row(ctx, "users; DROP TABLE users", nil)
	require.Error(t, err)

	_, err = db.Row(ctx, "users", map[string]any{"name = 'x' OR 1": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestCount_WithFilter(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	count, err := db.Count(ctx, "users", map[string]any{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = db.Count(ctx, "users", map[string]any{"name": "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
