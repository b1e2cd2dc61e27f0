package sqlharness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrRowNotFound is returned by Row when no row matches the filter.
var ErrRowNotFound = errors.New("no row matches filter")

// ErrMultipleRows is returned by Row when more than one row matches; the
// caller's filter is ambiguous and the assertion built on it meaningless.
var ErrMultipleRows = errors.New("multiple rows match filter")

// Row fetches exactly one row from table matching the where filter and
// returns it as a column→value map.
func (d *DB) Row(ctx context.Context, table string, where map[string]any) (map[string]any, error) {
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := d.db.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		return nil, fmt.Errorf("%s where %s: %w", table, formatWhere(where), ErrRowNotFound)
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return nil, fmt.Errorf("%s where %s: %w", table, formatWhere(where), ErrMultipleRows)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		// Normalize []byte to string: drivers disagree on TEXT column types
		// and fixture values are compared as strings.
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = values[i]
	}
	return row, nil
}

// Count returns the number of rows in table matching the where filter.
func (d *DB) Count(ctx context.Context, table string, where map[string]any) (int, error) {
	if !validIdentifier.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM " + table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var count int
	if err := d.db.QueryRowContext(ctx, query, whereArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// buildWhereClause constructs a parameterized WHERE clause.
// Keys are sorted for deterministic query generation; column names are
// validated since identifiers can't be parameterized.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause", key)
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhere creates a human-readable description of filter conditions.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}
