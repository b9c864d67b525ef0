package engine

import (
	"github.com/IshaanNene/cosmerank/internal/jobs"
	"github.com/IshaanNene/cosmerank/internal/types"
)

const (
	riseTarget     = 10
	maxMissingShow = 20
)

// QualityCheck verifies that a rank-contiguous job produced every rank
// from 1 to its target. topN_pages jobs are matched on ranking type alone;
// query-paged and rise jobs on category and ranking type. Rise rankings
// are only checked when they produced rows. Grouped jobs and jobs with no
// target are not checked.
func QualityCheck(records []types.ProductRecord, job jobs.Job) error {
	var target int
	match := func(r *types.ProductRecord) bool {
		return r.CategoryID == job.CategoryID && r.RankingType == job.RankingType
	}

	switch job.Kind {
	case jobs.KindTopNPages:
		target = job.TargetN
		match = func(r *types.ProductRecord) bool { return r.RankingType == job.RankingType }
	case jobs.KindTopNQueryPages:
		target = job.TargetN
	case jobs.KindRise:
		target = riseTarget
	default:
		return nil
	}
	if target <= 0 {
		return nil
	}

	ranks := make(map[int]bool)
	rows := 0
	for i := range records {
		r := &records[i]
		if !match(r) {
			continue
		}
		rows++
		if r.GlobalRank != nil {
			ranks[*r.GlobalRank] = true
		}
	}
	if job.Kind == jobs.KindRise && rows == 0 {
		return nil
	}

	var missing []int
	for rank := 1; rank <= target; rank++ {
		if !ranks[rank] {
			missing = append(missing, rank)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	shown := missing
	if len(shown) > maxMissingShow {
		shown = shown[:maxMissingShow]
	}
	return &types.QualityError{
		CategoryID:  job.CategoryID,
		RankingType: job.RankingType,
		Missing:     shown,
		Total:       len(missing),
	}
}

// QualityCheckAll runs QualityCheck for every job and returns the first
// failure.
func QualityCheckAll(records []types.ProductRecord, catalog []jobs.Job) error {
	for _, job := range catalog {
		if err := QualityCheck(records, job); err != nil {
			return err
		}
	}
	return nil
}
