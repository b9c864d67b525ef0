package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/cosmerank/internal/types"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteLoader appends CSV files and record batches into a SQLite table.
// Every column is TEXT; empty cells are stored as NULL.
type SQLiteLoader struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteLoader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteLoader{
		db:     db,
		path:   path,
		logger: logger.With("component", "sqlite_loader"),
	}, nil
}

// ValidTableName reports whether name is a plain SQL identifier.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// LoadCSV appends each CSV file to table, one transaction per file. With
// replace the table is dropped first. It returns the number of rows loaded.
func (l *SQLiteLoader) LoadCSV(ctx context.Context, table string, paths []string, replace bool) (int, error) {
	if !ValidTableName(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	if replace {
		l.logger.Info("dropping table", "table", table)
		if _, err := l.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return 0, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("drop %s: %w", table, err)}
		}
	}

	total := 0
	for _, p := range paths {
		header, rows, err := ReadCSV(p)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", p, err)
		}
		if len(header) == 0 {
			l.logger.Warn("skipping empty CSV", "path", p)
			continue
		}
		n, err := l.insertRows(ctx, table, header, rows)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", p, err)
		}
		l.logger.Info("CSV loaded", "file", filepath.Base(p), "table", table, "rows", n)
		total += n
	}
	return total, nil
}

// StoreRecords appends snapshot records to table.
func (l *SQLiteLoader) StoreRecords(ctx context.Context, table string, records []types.ProductRecord) (int, error) {
	if !ValidTableName(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	rows := make([]map[string]string, len(records))
	for i := range records {
		cells := records[i].ToRow()
		row := make(map[string]string, len(cells))
		for j, col := range types.SnapshotColumns {
			row[col] = cells[j]
		}
		rows[i] = row
	}
	return l.insertRows(ctx, table, types.SnapshotColumns, rows)
}

func (l *SQLiteLoader) insertRows(ctx context.Context, table string, header []string, rows []map[string]string) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer tx.Rollback()

	if err := ensureColumns(ctx, tx, table, header); err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}

	cols := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for _, row := range rows {
		for i, h := range header {
			if v := row[h]; v != "" {
				args[i] = v
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("insert: %w", err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("commit: %w", err)}
	}
	return len(rows), nil
}

// ensureColumns creates table when missing and adds any header column it
// does not have yet.
func ensureColumns(ctx context.Context, tx *sql.Tx, table string, header []string) error {
	existing, err := columns(ctx, tx, table)
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		defs := make([]string, len(header))
		for i, h := range header {
			defs[i] = quoteIdent(h) + " TEXT"
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", ")))
		if err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		return nil
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, h := range header {
		if have[h] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(h))); err != nil {
			return fmt.Errorf("add column %s: %w", h, err)
		}
		have[h] = true
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Columns lists the columns of table in declaration order.
func (l *SQLiteLoader) Columns(ctx context.Context, table string) ([]string, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return columns(ctx, l.db, table)
}

// Count returns the number of rows in table.
func (l *SQLiteLoader) Count(ctx context.Context, table string) (int, error) {
	if !ValidTableName(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	return n, err
}

// Close closes the database.
func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SQLiteStorage adapts a loader to the Storage interface for one table.
type SQLiteStorage struct {
	loader *SQLiteLoader
	table  string
	count  int
}

// NewSQLiteStorage opens path and appends stored records to table.
func NewSQLiteStorage(path, table string, logger *slog.Logger) (*SQLiteStorage, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	l, err := OpenSQLite(path, logger)
	if err != nil {
		return nil, err
	}
	return &SQLiteStorage{loader: l, table: table}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

func (s *SQLiteStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	n, err := s.loader.StoreRecords(ctx, s.table, records)
	s.count += n
	return err
}

func (s *SQLiteStorage) Close() error {
	s.loader.logger.Info("sqlite storage closing", "path", s.loader.path, "table", s.table, "records", s.count)
	return s.loader.Close()
}
