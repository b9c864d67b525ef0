package engine

import "github.com/IshaanNene/cosmerank/internal/types"

// DedupKeepLast removes records sharing (date, ranking_type, ranking_url,
// product_id), keeping the last occurrence. Kept records retain their
// relative order.
func DedupKeepLast(records []types.ProductRecord) []types.ProductRecord {
	last := make(map[string]int, len(records))
	for i := range records {
		last[records[i].DedupKey()] = i
	}

	out := make([]types.ProductRecord, 0, len(last))
	for i := range records {
		if last[records[i].DedupKey()] == i {
			out = append(out, records[i])
		}
	}
	return out
}
