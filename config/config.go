package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ShopwareConfig struct {
	BaseURL        string  `yaml:"base_url"`
	ClientID       string  `yaml:"client_id"`
	ClientSecret   string  `yaml:"client_secret"`
	PageSize       int     `yaml:"page_size"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	RetryAttempts  int     `yaml:"retry_attempts"`
}

type GeocoderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSec    float64 `yaml:"requests_per_sec"`
	Concurrency       int     `yaml:"concurrency"`
	RetryIntervalDays int     `yaml:"retry_interval_days"`
}

type PipelineConfig struct {
	RecencyWindowDays int `yaml:"recency_window_days"`
}

type PathsConfig struct {
	Artifact string `yaml:"artifact"`
	Decision string `yaml:"decision"`
	CacheDir string `yaml:"cache_dir"`
	RawDir   string `yaml:"raw_dir"`
	State    string `yaml:"state"`
	RunLog   string `yaml:"runlog_dir"`
}

type Config struct {
	Shopware ShopwareConfig `yaml:"shopware"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Paths    PathsConfig    `yaml:"paths"`
}

// Load builds the effective configuration: defaults, then the optional
// YAML file, then environment variables (credentials are env-only in
// production; a .env file is honored for local runs).
func Load(yamlPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := defaults()
	if yamlPath != "" {
		if err := loadYAML(yamlPath, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Shopware: ShopwareConfig{
			PageSize:       100,
			RequestsPerSec: 5,
			RetryAttempts:  3,
		},
		Geocoder: GeocoderConfig{
			RequestsPerSec:    1,
			Concurrency:       4,
			RetryIntervalDays: 14,
		},
		Pipeline: PipelineConfig{
			RecencyWindowDays: 300,
		},
		Paths: PathsConfig{
			Artifact: "data/partners.json",
			Decision: "data/publish_decision.json",
			CacheDir: "data/geocode_cache",
			RawDir:   "data/raw",
			State:    "data/run_state.json",
			RunLog:   "data/runs",
		},
	}
}

func loadYAML(path string, cfg *Config) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(payload, cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SHOPWARE_BASE_URL"); v != "" {
		cfg.Shopware.BaseURL = v
	}
	if v := os.Getenv("SHOPWARE_CLIENT_ID"); v != "" {
		cfg.Shopware.ClientID = v
	}
	if v := os.Getenv("SHOPWARE_CLIENT_SECRET"); v != "" {
		cfg.Shopware.ClientSecret = v
	}
	if v := os.Getenv("GEOCODER_BASE_URL"); v != "" {
		cfg.Geocoder.BaseURL = v
	}
	if v := os.Getenv("GEOCODER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Geocoder.Concurrency = n
		}
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if c.Shopware.BaseURL == "" {
		return errors.New("config: shopware base URL is required (SHOPWARE_BASE_URL)")
	}
	if c.Shopware.ClientID == "" || c.Shopware.ClientSecret == "" {
		return errors.New("config: shopware credentials are required (SHOPWARE_CLIENT_ID, SHOPWARE_CLIENT_SECRET)")
	}
	if c.Pipeline.RecencyWindowDays < 1 {
		return errors.New("config: recency window must be at least one day")
	}
	return nil
}

func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.Pipeline.RecencyWindowDays) * 24 * time.Hour
}

func (c *Config) GeocodeRetryInterval() time.Duration {
	days := c.Geocoder.RetryIntervalDays
	if days < 1 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}
