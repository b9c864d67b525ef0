// Package jobs holds the catalog of @cosme ranking targets.
package jobs

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/types"
)

//go:embed catalog.yaml
var productionCatalog []byte

//go:embed catalog_smoke.yaml
var smokeCatalog []byte

// Kind selects the parser and rank assignment strategy for a job.
type Kind string

const (
	KindTopNPages      Kind = "topN_pages"
	KindTopNQueryPages Kind = "topN_query_pages"
	KindRise           Kind = "rise"
	KindGrouped        Kind = "grouped"
)

// Ordered reports whether pages of this kind are parsed as a ranked list.
func (k Kind) Ordered() bool {
	return k == KindTopNPages || k == KindTopNQueryPages || k == KindRise
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.Ordered() || k == KindGrouped
}

const (
	defaultPageParam = "page"
	defaultPageSize  = 10
)

var validGroupTypes = map[string]bool{
	"age":      true,
	"skin":     true,
	"pchannel": true,
	"cross":    true,
}

// Job is one ranking target. A job is identified by (CategoryID, RankingType).
type Job struct {
	Source       string   `mapstructure:"source"        yaml:"source"`
	Market       string   `mapstructure:"market"        yaml:"market"`
	CategoryID   string   `mapstructure:"category_id"   yaml:"category_id"`
	CategoryName string   `mapstructure:"category_name" yaml:"category_name"`
	RankingType  string   `mapstructure:"ranking_type"  yaml:"ranking_type"`
	Kind         Kind     `mapstructure:"kind"          yaml:"kind"`
	GroupType    string   `mapstructure:"group_type"    yaml:"group_type"`
	PageParam    string   `mapstructure:"page_param"    yaml:"page_param"`
	PageSize     int      `mapstructure:"page_size"     yaml:"page_size"`
	TargetN      int      `mapstructure:"target_n"      yaml:"target_n"`
	URLs         []string `mapstructure:"urls"          yaml:"urls"`
}

// Key returns the job identity.
func (j Job) Key() string {
	return j.CategoryID + "/" + j.RankingType
}

// Catalog is an ordered list of jobs.
type Catalog struct {
	Jobs []Job `mapstructure:"jobs"`
}

// Production returns the full embedded catalog.
func Production() (*Catalog, error) {
	return parse(productionCatalog, "embedded catalog.yaml")
}

// Smoke returns the reduced catalog used by --test runs.
func Smoke() (*Catalog, error) {
	return parse(smokeCatalog, "embedded catalog_smoke.yaml")
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data, path)
}

// Select picks the catalog for a run: an explicit file wins, then --test,
// then the production catalog.
func Select(path string, test bool) (*Catalog, error) {
	switch {
	case path != "":
		return LoadFile(path)
	case test:
		return Smoke()
	default:
		return Production()
	}
}

func parse(data []byte, name string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	for i := range cat.Jobs {
		applyDefaults(&cat.Jobs[i])
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &cat, nil
}

func applyDefaults(j *Job) {
	if j.PageParam == "" {
		j.PageParam = defaultPageParam
	}
	if j.PageSize == 0 {
		j.PageSize = defaultPageSize
	}
}

// Validate checks every job and rejects duplicate identities.
func (c *Catalog) Validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("catalog has no jobs")
	}
	seen := make(map[string]int, len(c.Jobs))
	for i, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %d (%s): %w", i, j.Key(), err)
		}
		if prev, ok := seen[j.Key()]; ok {
			return fmt.Errorf("job %d duplicates job %d (%s)", i, prev, j.Key())
		}
		seen[j.Key()] = i
	}
	return nil
}

// Validate checks a single job.
func (j Job) Validate() error {
	if j.Source == "" || j.Market == "" {
		return fmt.Errorf("source and market are required")
	}
	if j.CategoryID == "" || j.RankingType == "" {
		return fmt.Errorf("category_id and ranking_type are required")
	}
	if !j.Kind.Valid() {
		return &types.UnknownKindError{CategoryID: j.CategoryID, RankingType: j.RankingType, Kind: string(j.Kind)}
	}
	if j.Kind == KindGrouped && !validGroupTypes[j.GroupType] {
		return fmt.Errorf("grouped job needs group_type age/skin/pchannel/cross, got %q", j.GroupType)
	}
	if j.Kind != KindGrouped && j.GroupType != "" {
		return fmt.Errorf("group_type is only valid for grouped jobs")
	}
	if j.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1, got %d", j.PageSize)
	}
	if j.TargetN < 0 {
		return fmt.Errorf("target_n must be >= 0, got %d", j.TargetN)
	}
	if len(j.URLs) == 0 {
		return fmt.Errorf("urls must not be empty")
	}
	for _, u := range j.URLs {
		if err := config.ValidateURL(u); err != nil {
			return fmt.Errorf("url %q: %w", u, err)
		}
	}
	return nil
}

// TotalPages counts the URLs across all jobs.
func (c *Catalog) TotalPages() int {
	n := 0
	for _, j := range c.Jobs {
		n += len(j.URLs)
	}
	return n
}
