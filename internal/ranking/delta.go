package ranking

import (
	"slices"
	"strconv"

	"github.com/IshaanNene/cosmerank/internal/storage"
)

// Status classifies a product's movement between two snapshots.
type Status string

const (
	StatusNew     Status = "new"
	StatusDropped Status = "dropped"
	StatusSame    Status = "same"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusNew, StatusDropped, StatusUp, StatusDown, StatusSame}

// DeltaRow compares one key across a consecutive snapshot pair. Diff is
// cur minus prev, so a negative Diff is an improvement.
type DeltaRow struct {
	Key

	RankPrev        *int
	ProductNamePrev string
	BrandNamePrev   string
	DatePrev        string

	RankCur        *int
	ProductNameCur string
	BrandNameCur   string
	DateCur        string

	Status       Status
	Diff         *int
	MovedBy      *int
	FromSnapshot string
	ToSnapshot   string
}

// DeltaColumns is the delta CSV header, in file order.
var DeltaColumns = []string{
	"category_id", "ranking_type", "group_type", "group_value", "product_id",
	"rank_value_prev", "product_name_prev", "brand_name_prev", "date_prev",
	"rank_value_cur", "product_name_cur", "brand_name_cur", "date_cur",
	"status", "rank_value_diff", "rank_value_moved_by", "from_snapshot", "to_snapshot",
}

// BetweenSnapshots outer-joins every consecutive pair of snapshots on Key.
// Rows of a pair are ordered by key.
func BetweenSnapshots(p *Panel) []DeltaRow {
	labels := p.Snapshots()
	var rows []DeltaRow
	for i := 1; i < len(labels); i++ {
		rows = append(rows, between(p, labels[i-1], labels[i])...)
	}
	return rows
}

func between(p *Panel, from, to string) []DeltaRow {
	prev, cur := p.snapshot(from), p.snapshot(to)

	keys := make([]Key, 0, len(prev)+len(cur))
	for k := range prev {
		keys = append(keys, k)
	}
	for k := range cur {
		if _, ok := prev[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, Key.compare)

	rows := make([]DeltaRow, 0, len(keys))
	for _, k := range keys {
		row := DeltaRow{Key: k, FromSnapshot: from, ToSnapshot: to}
		a, inPrev := prev[k]
		b, inCur := cur[k]
		if inPrev {
			row.RankPrev, row.ProductNamePrev, row.BrandNamePrev, row.DatePrev = a.Rank, a.ProductName, a.BrandName, a.Date
		}
		if inCur {
			row.RankCur, row.ProductNameCur, row.BrandNameCur, row.DateCur = b.Rank, b.ProductName, b.BrandName, b.Date
		}
		row.Status = classify(inPrev, inCur, row.RankPrev, row.RankCur)
		if row.RankPrev != nil && row.RankCur != nil {
			d := *row.RankCur - *row.RankPrev
			row.Diff = &d
			m := max(d, -d)
			row.MovedBy = &m
		}
		rows = append(rows, row)
	}
	return rows
}

// classify treats a key present in both snapshots without two comparable
// ranks as down, matching a failed "less than" comparison.
func classify(inPrev, inCur bool, prev, cur *int) Status {
	switch {
	case !inCur:
		return StatusDropped
	case !inPrev:
		return StatusNew
	case prev != nil && cur != nil && *prev == *cur:
		return StatusSame
	case prev != nil && cur != nil && *cur < *prev:
		return StatusUp
	default:
		return StatusDown
	}
}

// Filter keeps the rows of one snapshot pair.
func Filter(rows []DeltaRow, from, to string) []DeltaRow {
	var out []DeltaRow
	for _, r := range rows {
		if r.FromSnapshot == from && r.ToSnapshot == to {
			out = append(out, r)
		}
	}
	return out
}

// Row renders r as CSV cells in DeltaColumns order.
func (r DeltaRow) Row() []string {
	return []string{
		r.CategoryID, r.RankingType, r.GroupType, r.GroupValue, r.ProductID,
		intCell(r.RankPrev), r.ProductNamePrev, r.BrandNamePrev, r.DatePrev,
		intCell(r.RankCur), r.ProductNameCur, r.BrandNameCur, r.DateCur,
		string(r.Status), intCell(r.Diff), intCell(r.MovedBy), r.FromSnapshot, r.ToSnapshot,
	}
}

// WriteDeltaCSV writes rows as a BOM-prefixed CSV.
func WriteDeltaCSV(path string, rows []DeltaRow) error {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Row()
	}
	return storage.WriteCSV(path, DeltaColumns, cells)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
