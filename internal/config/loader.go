package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("COSMERANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cosmerank")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".cosmerank"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine unless one was named explicitly.
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.request_sleep", cfg.Engine.RequestSleep)
	v.SetDefault("engine.session_pause_every", cfg.Engine.SessionPauseEvery)
	v.SetDefault("engine.session_pause", cfg.Engine.SessionPause)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.retry_base", cfg.Engine.RetryBase)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.html_cache", cfg.Fetcher.HTMLCache)
	v.SetDefault("fetcher.soft_block.title_markers", cfg.Fetcher.SoftBlock.TitleMarkers)
	v.SetDefault("fetcher.soft_block.blog_path_marker", cfg.Fetcher.SoftBlock.BlogPathMarker)
	v.SetDefault("fetcher.soft_block.blog_canonical", cfg.Fetcher.SoftBlock.BlogCanonical)
	v.SetDefault("fetcher.soft_block.banner_markers", cfg.Fetcher.SoftBlock.BannerMarkers)
	v.SetDefault("fetcher.soft_block.banner_exemption", cfg.Fetcher.SoftBlock.BannerExemption)

	v.SetDefault("images.enabled", cfg.Images.Enabled)
	v.SetDefault("images.brand_pattern", cfg.Images.BrandPattern)
	v.SetDefault("images.max_retries", cfg.Images.MaxRetries)
	v.SetDefault("images.retry_base", cfg.Images.RetryBase)
	v.SetDefault("images.sleep", cfg.Images.Sleep)

	v.SetDefault("output.base_dir", cfg.Output.BaseDir)
	v.SetDefault("output.output_dir", cfg.Output.OutputDir)
	v.SetDefault("output.source", cfg.Output.Source)

	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
