package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/IshaanNene/cosmerank/internal/types"
)

// utf8BOM prefixes every CSV we write so spreadsheet tools detect UTF-8.
const utf8BOM = "\ufeff"

// CSVSnapshot writes records as a BOM-prefixed CSV with the snapshot header.
type CSVSnapshot struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVSnapshot creates path (and its directory) and writes the header.
func NewCSVSnapshot(path string, logger *slog.Logger) (*CSVSnapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	buf := bufio.NewWriter(f)
	if _, err := buf.WriteString(utf8BOM); err != nil {
		f.Close()
		return nil, fmt.Errorf("write BOM: %w", err)
	}
	w := csv.NewWriter(buf)
	if err := w.Write(types.SnapshotColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}

	return &CSVSnapshot{
		path:   path,
		file:   f,
		buf:    buf,
		writer: w,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVSnapshot) Name() string { return "csv" }

func (s *CSVSnapshot) Store(_ context.Context, records []types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		if err := s.writer.Write(records[i].ToRow()); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
		}
		s.count++
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	return nil
}

func (s *CSVSnapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// WriteSnapshot writes records to path in one go.
func WriteSnapshot(ctx context.Context, path string, records []types.ProductRecord, logger *slog.Logger) error {
	s, err := NewCSVSnapshot(path, logger)
	if err != nil {
		return err
	}
	if err := s.Store(ctx, records); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)

// WriteSplit writes one snapshot CSV per ranking type into dir, named after
// the sanitized ranking type. It returns the files written.
func WriteSplit(ctx context.Context, dir string, records []types.ProductRecord, logger *slog.Logger) ([]string, error) {
	var order []string
	groups := make(map[string][]types.ProductRecord)
	for _, r := range records {
		if _, ok := groups[r.RankingType]; !ok {
			order = append(order, r.RankingType)
		}
		groups[r.RankingType] = append(groups[r.RankingType], r)
	}

	paths := make([]string, 0, len(order))
	for _, rtype := range order {
		path := filepath.Join(dir, unsafeNameChars.ReplaceAllString(rtype, "_")+".csv")
		if err := WriteSnapshot(ctx, path, groups[rtype], logger); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ReadCSV reads a header-keyed CSV, tolerating a leading BOM. Short rows
// leave their trailing columns out of the map.
func ReadCSV(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]string, []map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read CSV row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// ReadSnapshot loads a snapshot CSV into records.
func ReadSnapshot(path string) ([]types.ProductRecord, error) {
	_, rows, err := ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	out := make([]types.ProductRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.RecordFromMap(row))
	}
	return out, nil
}

// WriteCSV writes a BOM-prefixed CSV with the given header and rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	if _, err := buf.WriteString(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write CSV rows: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return f.Close()
}
