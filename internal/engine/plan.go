package engine

import (
	"net/url"
	"strconv"

	"github.com/IshaanNene/cosmerank/internal/jobs"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// PageTask is one page fetch of a job with its rank offset resolved up
// front, so rank assignment never depends on fetch order.
type PageTask struct {
	Seq    int // position within the run
	Job    *jobs.Job
	URL    string
	Index  int // position within Job.URLs
	Offset int
	PageNo int
}

// Plan expands jobs into page tasks in declared order. An unknown kind is
// reported before anything is fetched.
func Plan(catalog []jobs.Job) ([]PageTask, error) {
	var tasks []PageTask
	for i := range catalog {
		job := &catalog[i]
		if !job.Kind.Valid() {
			return nil, &types.UnknownKindError{
				CategoryID:  job.CategoryID,
				RankingType: job.RankingType,
				Kind:        string(job.Kind),
			}
		}
		for idx, u := range job.URLs {
			offset, pageNo := PageOffset(*job, idx, u)
			tasks = append(tasks, PageTask{
				Seq:    len(tasks),
				Job:    job,
				URL:    u,
				Index:  idx,
				Offset: offset,
				PageNo: pageNo,
			})
		}
	}
	return tasks, nil
}

// PageOffset returns the global rank offset and page number for the URL at
// index in job.URLs. The overall top-100 ranking is paged by list
// position; query-paged rankings read the page number from the URL;
// everything else starts at rank 1.
func PageOffset(job jobs.Job, index int, rawURL string) (offset, pageNo int) {
	pageSize := job.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	if job.RankingType == "products_top100" {
		return index * pageSize, index + 1
	}

	if job.Kind == jobs.KindTopNQueryPages {
		param := job.PageParam
		if param == "" {
			param = "page"
		}
		pageNo = 1
		if u, err := url.Parse(rawURL); err == nil {
			if n, err := strconv.Atoi(u.Query().Get(param)); err == nil && n >= 1 {
				pageNo = n
			}
		}
		return (pageNo - 1) * pageSize, pageNo
	}

	return 0, 1
}

// maxEachGroup is the per-group cap for grouped rankings.
func maxEachGroup(groupType string) int {
	if groupType == "cross" {
		return 2
	}
	return 3
}
