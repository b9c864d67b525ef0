// Package ranking compares weekly snapshots and reports how each product's
// rank moved between consecutive weeks.
package ranking

import (
	"cmp"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/IshaanNene/cosmerank/internal/storage"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// Key identifies a product within one ranking across snapshots.
type Key struct {
	CategoryID  string
	RankingType string
	GroupType   string
	GroupValue  string
	ProductID   string
}

func (k Key) compare(o Key) int {
	return cmp.Or(
		cmp.Compare(k.CategoryID, o.CategoryID),
		cmp.Compare(k.RankingType, o.RankingType),
		cmp.Compare(k.GroupType, o.GroupType),
		cmp.Compare(k.GroupValue, o.GroupValue),
		cmp.Compare(k.ProductID, o.ProductID),
	)
}

// Entry is one prepared snapshot row.
type Entry struct {
	Snapshot        string
	SourceFile      string
	Key             Key
	Rank            *int // group_rank, else global_rank
	Date            string
	ProductName     string
	ProductNameNorm string
	BrandName       string
}

// Panel is the prepared rows of every loaded snapshot.
type Panel struct {
	Entries []Entry
}

var (
	weekLabel  = regexp.MustCompile(`week\d+`)
	firstDigit = regexp.MustCompile(`\d+`)
)

// SnapshotLabel returns the first "week<N>" in path, else its base name.
func SnapshotLabel(path string) string {
	if m := weekLabel.FindString(path); m != "" {
		return m
	}
	return filepath.Base(path)
}

// LoadAndPrepare reads snapshot CSVs into a panel. Each snapshot keeps one
// row per key, the one with the best (lowest) rank.
func LoadAndPrepare(paths []string) (*Panel, error) {
	var entries []Entry
	for _, p := range paths {
		_, rows, err := storage.ReadCSV(p)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", p, err)
		}
		label := SnapshotLabel(p)
		for _, row := range rows {
			entries = append(entries, prepare(row, label, filepath.Base(p)))
		}
	}
	return &Panel{Entries: dedupBestRank(entries)}, nil
}

func prepare(row map[string]string, label, file string) Entry {
	rank := types.ParseIntCell(row["group_rank"])
	if rank == nil {
		rank = types.ParseIntCell(row["global_rank"])
	}
	return Entry{
		Snapshot:   label,
		SourceFile: file,
		Key: Key{
			CategoryID:  row["category_id"],
			RankingType: row["ranking_type"],
			GroupType:   row["group_type"],
			GroupValue:  row["group_value"],
			ProductID:   row["product_id"],
		},
		Rank:            rank,
		Date:            row["date"],
		ProductName:     row["product_name"],
		ProductNameNorm: NormalizeName(row["product_name"]),
		BrandName:       row["brand_name"],
	}
}

// compareRank orders present ranks ascending with missing ranks last.
func compareRank(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*a, *b)
	}
}

func dedupBestRank(entries []Entry) []Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Snapshot, b.Snapshot), compareRank(a.Rank, b.Rank))
	})

	type snapKey struct {
		snapshot string
		key      Key
	}
	seen := make(map[snapKey]bool, len(sorted))
	out := sorted[:0]
	for _, e := range sorted {
		k := snapKey{e.Snapshot, e.Key}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// Snapshots returns the panel's labels ordered by the first integer in
// each label (labels without one sort as 0), so week2 precedes week10.
func (p *Panel) Snapshots() []string {
	var labels []string
	seen := make(map[string]bool)
	for _, e := range p.Entries {
		if !seen[e.Snapshot] {
			seen[e.Snapshot] = true
			labels = append(labels, e.Snapshot)
		}
	}
	slices.SortStableFunc(labels, func(a, b string) int {
		return cmp.Compare(labelNumber(a), labelNumber(b))
	})
	return labels
}

func labelNumber(label string) int {
	n, err := strconv.Atoi(firstDigit.FindString(label))
	if err != nil {
		return 0
	}
	return n
}

func (p *Panel) snapshot(label string) map[Key]*Entry {
	out := make(map[Key]*Entry)
	for i := range p.Entries {
		if p.Entries[i].Snapshot == label {
			out[p.Entries[i].Key] = &p.Entries[i]
		}
	}
	return out
}
