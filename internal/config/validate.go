package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 8 {
		return fmt.Errorf("engine.concurrency must be <= 8, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.RequestSleep < 0 {
		return fmt.Errorf("engine.request_sleep must be >= 0")
	}
	if cfg.Engine.SessionPauseEvery < 0 {
		return fmt.Errorf("engine.session_pause_every must be >= 0, got %d", cfg.Engine.SessionPauseEvery)
	}
	if cfg.Engine.SessionPause < 0 {
		return fmt.Errorf("engine.session_pause must be >= 0")
	}
	if cfg.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine.max_retries must be >= 1, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.RetryBase < 0 {
		return fmt.Errorf("engine.retry_base must be >= 0")
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if c := cfg.Fetcher.SoftBlock.BlogCanonical; c != "" {
		if err := ValidateURL(c); err != nil {
			return fmt.Errorf("fetcher.soft_block.blog_canonical: %w", err)
		}
	}

	if cfg.Images.Enabled {
		if _, err := regexp.Compile(cfg.Images.BrandPattern); err != nil {
			return fmt.Errorf("images.brand_pattern: %w", err)
		}
		if cfg.Images.MaxRetries < 1 {
			return fmt.Errorf("images.max_retries must be >= 1, got %d", cfg.Images.MaxRetries)
		}
	}

	if cfg.Output.OutputDir == "" {
		return fmt.Errorf("output.output_dir must be set")
	}
	if cfg.Output.Source == "" {
		return fmt.Errorf("output.source must be set")
	}

	if cfg.Storage.Mongo.URI != "" {
		if cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "" {
			return fmt.Errorf("storage.mongo.database and storage.mongo.collection are required with storage.mongo.uri")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
