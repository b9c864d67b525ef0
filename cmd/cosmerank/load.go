package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/cosmerank/internal/storage"
)

var (
	loadDB      string
	loadTable   string
	loadReplace bool
)

// loadCmd creates the "load" subcommand.
func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [file.csv...]",
		Short: "Append snapshot CSVs to a SQLite table",
		Long: `Append each CSV to a SQLite table, one transaction per file. The table
is created from the first header if missing and gains any new columns
later files bring. With --replace the table is dropped first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLoad,
	}

	cmd.Flags().StringVar(&loadDB, "db", "", "SQLite database file (default storage.sqlite_path)")
	cmd.Flags().StringVarP(&loadTable, "table", "t", "cosme", "destination table")
	cmd.Flags().BoolVar(&loadReplace, "replace", false, "drop the table before loading")

	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	db := loadDB
	if db == "" {
		db = cfg.Storage.SQLitePath
	}
	if db == "" {
		return fmt.Errorf("no database: pass --db or set storage.sqlite_path")
	}
	if !storage.ValidTableName(loadTable) {
		return fmt.Errorf("invalid table name %q", loadTable)
	}

	loader, err := storage.OpenSQLite(db, logger)
	if err != nil {
		return err
	}
	defer loader.Close()

	n, err := loader.LoadCSV(cmd.Context(), loadTable, args, loadReplace)
	if err != nil {
		return err
	}
	total, err := loader.Count(cmd.Context(), loadTable)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Loaded %d rows from %d files into %s.%s (%d rows total)\n", n, len(args), db, loadTable, total)
	return nil
}
