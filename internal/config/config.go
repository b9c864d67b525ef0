package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for cosmerank.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Images  ImagesConfig  `mapstructure:"images"  yaml:"images"`
	Output  OutputConfig  `mapstructure:"output"  yaml:"output"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig controls the collection run: throttling and retries.
type EngineConfig struct {
	Concurrency       int           `mapstructure:"concurrency"         yaml:"concurrency"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     yaml:"request_timeout"`
	RequestSleep      time.Duration `mapstructure:"request_sleep"       yaml:"request_sleep"`
	SessionPauseEvery int           `mapstructure:"session_pause_every" yaml:"session_pause_every"`
	SessionPause      time.Duration `mapstructure:"session_pause"       yaml:"session_pause"`
	MaxRetries        int           `mapstructure:"max_retries"         yaml:"max_retries"`
	RetryBase         time.Duration `mapstructure:"retry_base"          yaml:"retry_base"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string          `mapstructure:"type"              yaml:"type"`
	UserAgent       string          `mapstructure:"user_agent"        yaml:"user_agent"`
	AcceptLanguage  string          `mapstructure:"accept_language"   yaml:"accept_language"`
	FollowRedirects bool            `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int             `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64           `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration   `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int             `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	HTMLCache       bool            `mapstructure:"html_cache"        yaml:"html_cache"`
	SoftBlock       SoftBlockConfig `mapstructure:"soft_block"        yaml:"soft_block"`
}

// SoftBlockConfig holds the login-wall heuristics. The markers are tuned to
// @cosme page templates and may need updating when the site changes.
type SoftBlockConfig struct {
	TitleMarkers    []string `mapstructure:"title_markers"    yaml:"title_markers"`
	BlogPathMarker  string   `mapstructure:"blog_path_marker" yaml:"blog_path_marker"`
	BlogCanonical   string   `mapstructure:"blog_canonical"   yaml:"blog_canonical"`
	BannerMarkers   []string `mapstructure:"banner_markers"   yaml:"banner_markers"`
	BannerExemption string   `mapstructure:"banner_exemption" yaml:"banner_exemption"`
}

// ImagesConfig controls product image enrichment.
type ImagesConfig struct {
	Enabled      bool          `mapstructure:"enabled"       yaml:"enabled"`
	BrandPattern string        `mapstructure:"brand_pattern" yaml:"brand_pattern"`
	MaxRetries   int           `mapstructure:"max_retries"   yaml:"max_retries"`
	RetryBase    time.Duration `mapstructure:"retry_base"    yaml:"retry_base"`
	Sleep        time.Duration `mapstructure:"sleep"         yaml:"sleep"`
}

// OutputConfig controls where snapshots and images are written.
type OutputConfig struct {
	BaseDir   string `mapstructure:"base_dir"   yaml:"base_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	Source    string `mapstructure:"source"     yaml:"source"`
}

// StorageConfig controls optional sinks beyond the CSV snapshot.
type StorageConfig struct {
	SQLitePath string      `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig enables the MongoDB sink when URI is set.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with the production throttle settings.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:       1,
			RequestTimeout:    25 * time.Second,
			RequestSleep:      1300 * time.Millisecond,
			SessionPauseEvery: 20,
			SessionPause:      6 * time.Second,
			MaxRetries:        3,
			RetryBase:         1 * time.Second,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AcceptLanguage:  "ja,en-US;q=0.9,en;q=0.8,ko;q=0.7",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
			SoftBlock: SoftBlockConfig{
				TitleMarkers:    []string{"ログイン／メンバー登録", "共通ID登録"},
				BlogPathMarker:  "/beautist",
				BlogCanonical:   "https://www.cosme.net/beautist",
				BannerMarkers:   []string{"会員登録(無料)", "ログイン"},
				BannerExemption: "ブログ TOP",
			},
		},
		Images: ImagesConfig{
			Enabled:      true,
			BrandPattern: `(?i)(laneige|라네즈|ラネージュ)`,
			MaxRetries:   3,
			RetryBase:    800 * time.Millisecond,
			Sleep:        600 * time.Millisecond,
		},
		Output: OutputConfig{
			BaseDir:   ".",
			OutputDir: "./output",
			Source:    "cosme",
		},
		Storage: StorageConfig{
			Mongo: MongoConfig{
				Database:   "cosmerank",
				Collection: "cosme",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
