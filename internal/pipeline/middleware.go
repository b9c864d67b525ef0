package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/media"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// RequiredFieldsMiddleware drops records without a product id.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	if strings.TrimSpace(rec.ProductID) == "" {
		return nil, nil
	}
	return rec, nil
}

// TrimMiddleware trims whitespace from the free-text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	for _, s := range []*string{
		&rec.ProductID, &rec.ProductName, &rec.BrandName, &rec.ProductURL,
		&rec.ImageURL, &rec.PriceText, &rec.RankChangeText, &rec.BrandURL,
	} {
		*s = strings.TrimSpace(*s)
	}
	return rec, nil
}

var nameSeparator = regexp.MustCompile(`\s*[/／]\s*`)

// SplitProductName strips the brand prefix from a listing name of the form
// "<brand> / <product>". The split applies when the name starts with the
// brand, or when no brand is known; otherwise the name is kept as is.
func SplitProductName(name, brand string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return name
	}
	if b := strings.TrimSpace(brand); b != "" && !strings.HasPrefix(s, b) {
		return s
	}
	parts := nameSeparator.Split(s, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return s
}

// RuleSplitMiddleware applies SplitProductName to every record.
type RuleSplitMiddleware struct{}

func (m *RuleSplitMiddleware) Name() string { return "rule_split" }

func (m *RuleSplitMiddleware) Process(_ context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	rec.ProductName = SplitProductName(rec.ProductName, rec.BrandName)
	return rec, nil
}

// ImageFetcher downloads one image. *media.Downloader satisfies it.
type ImageFetcher interface {
	Download(ctx context.Context, rawURL, outDir, stem string) media.Result
}

// ImageMiddleware downloads images for the brand of interest and records
// the local path relative to the output base directory. A failed download
// leaves ImagePath empty and never drops the record.
type ImageMiddleware struct {
	fetcher ImageFetcher
	brand   *regexp.Regexp
	dir     string
	cfg     *config.Config
}

// NewImageMiddleware compiles the configured brand pattern.
func NewImageMiddleware(fetcher ImageFetcher, cfg *config.Config, dir string) (*ImageMiddleware, error) {
	re, err := regexp.Compile(cfg.Images.BrandPattern)
	if err != nil {
		return nil, fmt.Errorf("compile brand pattern: %w", err)
	}
	return &ImageMiddleware{fetcher: fetcher, brand: re, dir: dir, cfg: cfg}, nil
}

func (m *ImageMiddleware) Name() string { return "image" }

// Matches reports whether the record belongs to the brand of interest,
// judged on the brand name or, when that is empty, the product name.
func (m *ImageMiddleware) Matches(rec *types.ProductRecord) bool {
	subject := strings.TrimSpace(rec.BrandName)
	if subject == "" {
		subject = strings.TrimSpace(rec.ProductName)
	}
	return subject != "" && m.brand.MatchString(subject)
}

func (m *ImageMiddleware) Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	if rec.ImageURL == "" || rec.ProductID == "" || !m.Matches(rec) {
		return rec, nil
	}

	res := m.fetcher.Download(ctx, rec.ImageURL, m.dir, ImageStem(rec))
	if res.OK() {
		rec.ImagePath = config.RelativeToBase(m.cfg, res.Path)
	}
	return rec, nil
}

// ImageStem names an image after its ranking position:
// category__ranking_type__rank__product_id for ordered rows and
// category__ranking_type__group_type__group_value__group_rank__product_id
// (sanitized) for grouped rows.
func ImageStem(rec *types.ProductRecord) string {
	if rec.GroupType != nil {
		stem := strings.Join([]string{
			rec.CategoryID, rec.RankingType, *rec.GroupType,
			deref(rec.GroupValue), intString(rec.GroupRank), rec.ProductID,
		}, "__")
		return media.SafeFilename(stem)
	}
	return strings.Join([]string{rec.CategoryID, rec.RankingType, intString(rec.GlobalRank), rec.ProductID}, "__")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intString(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprint(*n)
}
