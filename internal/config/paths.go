package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths is the per-week output layout under <output_dir>/<source>/.
type Paths struct {
	Root         string
	WeekCSV      string
	ImageDir     string
	HTMLCacheDir string
}

// BuildPaths resolves and creates the output directories for a collection week.
func BuildPaths(cfg *Config, week int) (*Paths, error) {
	if week < 1 {
		return nil, fmt.Errorf("week must be >= 1, got %d", week)
	}

	root := filepath.Join(cfg.Output.OutputDir, cfg.Output.Source)
	p := &Paths{
		Root:         root,
		WeekCSV:      filepath.Join(root, fmt.Sprintf("week%d_%s.csv", week, cfg.Output.Source)),
		ImageDir:     filepath.Join(root, fmt.Sprintf("week%d_images", week)),
		HTMLCacheDir: filepath.Join(root, "_html"),
	}

	for _, dir := range []string{p.Root, p.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	if cfg.Fetcher.HTMLCache {
		if err := os.MkdirAll(p.HTMLCacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create html cache dir: %w", err)
		}
	}
	return p, nil
}

// RelativeToBase returns path relative to the configured base directory,
// falling back to the absolute path when it cannot be relativized.
func RelativeToBase(cfg *Config, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	base, err := filepath.Abs(cfg.Output.BaseDir)
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return rel
}
