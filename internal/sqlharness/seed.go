package sqlharness

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be parameterized, so anything interpolated into a
// statement must match this pattern.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SeedFile is the on-disk seed fixture format:
//
//	tables:
//	  - table: users
//	    rows:
//	      - {id: 1, name: alice}
//	      - {id: 2, name: bob}
//
// Tables are loaded in declaration order so foreign-key parents can be
// seeded before children.
type SeedFile struct {
	Tables []SeedTable `yaml:"tables"`
}

// SeedTable seeds one table with a list of rows.
type SeedTable struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// LoadSeed parses and applies a YAML seed file inside a single transaction.
//
// Like ApplySchema, the file is recorded in qakit_meta and re-applying the
// identical file is a no-op.
func (d *DB) LoadSeed(ctx context.Context, path string) error {
	return d.applyFile(ctx, path, "seed", func(content string) error {
		seed, err := ParseSeed([]byte(content))
		if err != nil {
			return fmt.Errorf("invalid seed file %s: %w", path, err)
		}
		return d.insertSeed(ctx, seed)
	})
}

// ParseSeed parses seed YAML with strict field validation.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(seed.Tables) == 0 {
		return nil, fmt.Errorf("tables list is required and must be non-empty")
	}
	for i, tbl := range seed.Tables {
		if tbl.Table == "" {
			return nil, fmt.Errorf("tables[%d]: table name is required", i)
		}
		if !validIdentifier.MatchString(tbl.Table) {
			return nil, fmt.Errorf("tables[%d]: invalid table name %q", i, tbl.Table)
		}
		if len(tbl.Rows) == 0 {
			return nil, fmt.Errorf("tables[%d] (%s): rows list is required and must be non-empty", i, tbl.Table)
		}
		for j, row := range tbl.Rows {
			if len(row) == 0 {
				return nil, fmt.Errorf("tables[%d] (%s): rows[%d] is empty", i, tbl.Table, j)
			}
			for col := range row {
				if !validIdentifier.MatchString(col) {
					return nil, fmt.Errorf("tables[%d] (%s): rows[%d]: invalid column name %q", i, tbl.Table, j, col)
				}
			}
		}
	}
	return &seed, nil
}

// insertSeed writes all rows in one transaction. Columns are sorted so the
// generated statements are deterministic.
func (d *DB) insertSeed(ctx context.Context, seed *SeedFile) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tbl := range seed.Tables {
		for i, row := range tbl.Rows {
			cols := make([]string, 0, len(row))
			for col := range row {
				cols = append(cols, col)
			}
			sort.Strings(cols)

			placeholders := make([]string, len(cols))
			args := make([]any, len(cols))
			for j, col := range cols {
				placeholders[j] = "?"
				args[j] = row[col]
			}

			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				tbl.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("seed %s row %d: %w", tbl.Table, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

// Truncate deletes all rows from the given tables, children first if the
// caller orders them that way. Table names are validated.
func (d *DB) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if !validIdentifier.MatchString(table) {
			return fmt.Errorf("invalid table name %q", table)
		}
		if _, err := d.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}
