package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qakit/qakit/internal/sqlharness"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	DB     string // database file path
	Schema string // schema file path
	Seed   string // seed file path
}

// SeedResult holds the seed command outcome.
type SeedResult struct {
	Database string `json:"database"`
	Schema   string `json:"schema,omitempty"`
	Seed     string `json:"seed,omitempty"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bootstrap a SQLite database from fixtures",
		Long: `Create or update a SQLite database file from schema and seed fixtures.

Applied files are recorded in the database, so re-running the command
with identical fixtures is a no-op and changed fixtures under the same
file name are rejected.

Examples:
  qakit seed --db ./dev.db --schema ./schema.sql
  qakit seed --db ./dev.db --schema ./schema.sql --seed ./seed.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database file (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema SQL file to apply")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "seed YAML file to load")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Schema == "" && opts.Seed == "" {
		return NewExitError(ExitCommandError, "nothing to apply: pass --schema and/or --seed")
	}
	for _, path := range []string{opts.Schema, opts.Seed} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("fixture file not found: %s", path))
		}
	}

	db, err := sqlharness.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.DB), err)
	}
	defer db.Close()

	ctx := context.Background()
	if opts.Schema != "" {
		formatter.VerboseLog("Applying schema %s", opts.Schema)
		if err := db.ApplySchema(ctx, opts.Schema); err != nil {
			return WrapExitError(ExitFailure, "failed to apply schema", err)
		}
	}
	if opts.Seed != "" {
		formatter.VerboseLog("Loading seed %s", opts.Seed)
		if err := db.LoadSeed(ctx, opts.Seed); err != nil {
			return WrapExitError(ExitFailure, "failed to load seed", err)
		}
	}

	result := SeedResult{Database: opts.DB, Schema: opts.Schema, Seed: opts.Seed}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "database %s ready\n", opts.DB)
	return nil
}
