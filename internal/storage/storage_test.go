package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/cosmerank/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleRecords() []types.ProductRecord {
	return []types.ProductRecord{
		{
			Date: "2025-03-10", CollectedAt: "2025-03-10T00:00:00.000000Z", Source: "cosme", Market: "JP",
			CategoryID: "ALL", RankingType: "products_top100", RankingURL: "https://www.cosme.net/ranking/products",
			GlobalRank: types.Ptr(1), PageRank: types.Ptr(1),
			ProductID: "101", ProductName: "クリーム, \"限定\"", BrandName: "LANEIGE",
			RatingScore: types.Ptr(5.6), ReviewCount: types.Ptr(1234),
		},
		{
			Date: "2025-03-10", Source: "cosme", Market: "JP", CategoryID: "800", RankingType: "age_top3",
			GroupType: types.Ptr("age"), GroupValue: types.Ptr("20代"), GroupRank: types.Ptr(2),
			ProductID: "202",
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cosme", "week1_cosme.csv")
	require.NoError(t, WriteSnapshot(context.Background(), path, sampleRecords(), testLogger))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\ufeffdate,collected_at,"), "missing BOM or header")

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, sampleRecords(), got)
}

func TestReadCSVShortRows(t *testing.T) {
	header, rows, err := readCSV(strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, header)
	require.Len(t, rows, 1)
	_, ok := rows[0]["c"]
	require.False(t, ok)
}

func TestWriteSplit(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteSplit(context.Background(), dir, sampleRecords(), testLogger)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "products_top100.csv"),
		filepath.Join(dir, "age_top3.csv"),
	}, paths)

	got, err := ReadSnapshot(paths[1])
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "202", got[0].ProductID)
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestSQLiteLoaderAppendsAndAddsColumns(t *testing.T) {
	ctx := context.Background()
	l, err := OpenSQLite(":memory:", testLogger)
	require.NoError(t, err)
	defer l.Close()

	week1 := writeFile(t, "week1.csv", "\ufeffproduct_id,global_rank\n1,1\n2,\n")
	week2 := writeFile(t, "week2.csv", "product_id,global_rank,image_path\n3,1,a.jpg\n")

	n, err := l.LoadCSV(ctx, "cosme", []string{week1}, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = l.LoadCSV(ctx, "cosme", []string{week2}, false)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cols, err := l.Columns(ctx, "cosme")
	require.NoError(t, err)
	require.Equal(t, []string{"product_id", "global_rank", "image_path"}, cols)

	count, err := l.Count(ctx, "cosme")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	var nulls int
	require.NoError(t, l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cosme WHERE global_rank IS NULL`).Scan(&nulls))
	require.Equal(t, 1, nulls, "empty cell should load as NULL")
}

func TestSQLiteLoaderReplace(t *testing.T) {
	ctx := context.Background()
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "cosme.db"), testLogger)
	require.NoError(t, err)
	defer l.Close()

	csv := writeFile(t, "w.csv", "product_id\n1\n2\n")
	_, err = l.LoadCSV(ctx, "amazon", []string{csv, csv}, false)
	require.NoError(t, err)

	_, err = l.LoadCSV(ctx, "amazon", []string{csv}, true)
	require.NoError(t, err)

	count, err := l.Count(ctx, "amazon")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSQLiteLoaderRejectsTableName(t *testing.T) {
	l, err := OpenSQLite(":memory:", testLogger)
	require.NoError(t, err)
	defer l.Close()

	for _, name := range []string{"", "1week", "cosme; DROP TABLE x", "a-b"} {
		_, err := l.LoadCSV(context.Background(), name, nil, false)
		require.Error(t, err, name)
	}
}

func TestSQLiteStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cosme.db")

	s, err := NewSQLiteStorage(path, "cosme", testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, sampleRecords()))
	require.NoError(t, s.Close())

	l, err := OpenSQLite(path, testLogger)
	require.NoError(t, err)
	defer l.Close()

	cols, err := l.Columns(ctx, "cosme")
	require.NoError(t, err)
	require.Equal(t, types.SnapshotColumns, cols)

	var group string
	require.NoError(t, l.db.QueryRowContext(ctx, `SELECT group_value FROM cosme WHERE product_id = '202'`).Scan(&group))
	require.Equal(t, "20代", group)
}

func TestRecordDoc(t *testing.T) {
	recs := sampleRecords()
	doc := recordDoc(&recs[1], "run-1").Map()

	require.Nil(t, doc["global_rank"])
	require.Equal(t, 2, doc["group_rank"])
	require.Equal(t, "20代", doc["group_value"])
	require.Equal(t, "run-1", doc["_run_id"])
}

type fakeBackend struct {
	name   string
	err    error
	stored int
	closed bool
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Store(_ context.Context, recs []types.ProductRecord) error {
	f.stored += len(recs)
	return f.err
}
func (f *fakeBackend) Close() error { f.closed = true; return nil }

func TestMultiStorageFansOut(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeBackend{name: "a", err: boom}
	b := &fakeBackend{name: "b"}
	m := NewMultiStorage([]Storage{a, b}, testLogger)

	err := m.Store(context.Background(), sampleRecords())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, b.stored, "later backends still receive records")

	require.NoError(t, m.Close())
	require.True(t, a.closed && b.closed)
}
