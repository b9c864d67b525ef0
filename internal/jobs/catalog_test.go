package jobs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/IshaanNene/cosmerank/internal/types"
)

func TestProductionCatalog(t *testing.T) {
	cat, err := Production()
	if err != nil {
		t.Fatalf("production catalog: %v", err)
	}

	first := cat.Jobs[0]
	if first.RankingType != "products_top100" || first.Kind != KindTopNPages {
		t.Errorf("first job = %s/%s", first.RankingType, first.Kind)
	}
	if first.TargetN != 100 || len(first.URLs) != 10 {
		t.Errorf("top100: target=%d urls=%d", first.TargetN, len(first.URLs))
	}

	crosses := 0
	for _, j := range cat.Jobs {
		if j.GroupType == "cross" {
			crosses++
			if j.CategoryID != "1005" {
				t.Errorf("cross job in category %s", j.CategoryID)
			}
		}
		if j.Kind == KindTopNQueryPages && j.PageParam != "page" {
			t.Errorf("%s: page_param = %q", j.Key(), j.PageParam)
		}
	}
	if crosses != 1 {
		t.Errorf("cross jobs = %d, want 1", crosses)
	}
}

func TestSmokeCatalog(t *testing.T) {
	cat, err := Select("", true)
	if err != nil {
		t.Fatalf("smoke catalog: %v", err)
	}
	if len(cat.Jobs) != 1 || cat.TotalPages() != 1 {
		t.Fatalf("smoke catalog: %d jobs, %d pages", len(cat.Jobs), cat.TotalPages())
	}
	if cat.Jobs[0].TargetN != 10 {
		t.Errorf("target_n = %d, want 10", cat.Jobs[0].TargetN)
	}
}

func TestLoadFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	data := `
jobs:
  - source: cosme
    market: JP
    category_id: "800"
    category_name: skincare
    ranking_type: latest_review_top50
    kind: topN_query_pages
    target_n: 50
    urls:
      - https://www.cosme.net/categories/item/800/ranking/
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	j := cat.Jobs[0]
	if j.PageParam != "page" || j.PageSize != 10 {
		t.Errorf("defaults not applied: page_param=%q page_size=%d", j.PageParam, j.PageSize)
	}
}

func TestValidateRejects(t *testing.T) {
	base := Job{
		Source: "cosme", Market: "JP", CategoryID: "800", RankingType: "age_top3",
		Kind: KindGrouped, GroupType: "age", PageSize: 10,
		URLs: []string{"https://www.cosme.net/categories/item/800/ranking-age/"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base job invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"no urls", func(j *Job) { j.URLs = nil }},
		{"relative url", func(j *Job) { j.URLs = []string{"/ranking"} }},
		{"bad group type", func(j *Job) { j.GroupType = "color" }},
		{"group type on ordered", func(j *Job) { j.Kind = KindRise }},
		{"negative target", func(j *Job) { j.TargetN = -1 }},
		{"missing category", func(j *Job) { j.CategoryID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := base
			tt.mutate(&j)
			if err := j.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUnknownKind(t *testing.T) {
	j := Job{Source: "cosme", Market: "JP", CategoryID: "1", RankingType: "x", Kind: "weekly"}
	err := j.Validate()
	if !errors.Is(err, types.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDuplicateJob(t *testing.T) {
	cat, err := Smoke()
	if err != nil {
		t.Fatal(err)
	}
	cat.Jobs = append(cat.Jobs, cat.Jobs[0])
	if err := cat.Validate(); err == nil {
		t.Error("expected duplicate job error")
	}
}
