package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"CryptoAnalysis/internal/collector"
	"CryptoAnalysis/internal/merger"
	"CryptoAnalysis/internal/model"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// MetricGroup is one set of metrics fetched into one artifact.
type MetricGroup struct {
	Metrics []string `yaml:"metrics"`
	File    string   `yaml:"file"`
}

// Asset describes the inputs and outputs of one merged dataset. ReturnsFile
// is optional.
type Asset struct {
	Name         string        `yaml:"name"`
	PriceFile    string        `yaml:"price_file"`
	OutputFile   string        `yaml:"output_file"`
	ReturnsFile  string        `yaml:"returns_file"`
	MetricGroups []MetricGroup `yaml:"metric_groups"`
}

// Config holds all application configuration.
type Config struct {
	DataSource struct {
		BaseURL  string        `yaml:"base_url"`
		APIKey   string        `yaml:"api_key"`
		PageSize int           `yaml:"page_size"`
		Format   string        `yaml:"format"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"data_source"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Delay       time.Duration `yaml:"delay"`
		Throttle    time.Duration `yaml:"throttle"`
	} `yaml:"retry"`
	Window struct {
		Start     string `yaml:"start"`
		End       string `yaml:"end"`
		Frequency string `yaml:"frequency"`
	} `yaml:"window"`
	Merge struct {
		SkipRows     *int   `yaml:"skip_rows"`
		SupplyColumn string `yaml:"supply_column"`
		Precision    int    `yaml:"precision"`
	} `yaml:"merge"`
	Assets   []Asset `yaml:"assets"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	LogLevel string `yaml:"log_level"`
	Proxy    string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields the default configuration.
// Variables from a .env file in the working directory are loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("COINMETRICS_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("COINMETRICS_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("WINDOW_START"); v != "" {
		cfg.Window.Start = v
	}
	if v := os.Getenv("WINDOW_END"); v != "" {
		cfg.Window.End = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.BaseURL == "" {
		c.DataSource.BaseURL = collector.DefaultBaseURL
	}
	if c.DataSource.PageSize == 0 {
		c.DataSource.PageSize = collector.DefaultPageSize
	}
	if c.DataSource.Format == "" {
		c.DataSource.Format = collector.DefaultFormat
	}

	def := collector.DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = def.Delay
	}
	if c.Retry.Throttle == 0 {
		c.Retry.Throttle = def.Throttle
	}

	if c.Window.Start == "" {
		c.Window.Start = "2018-01-01"
	}
	if c.Window.End == "" {
		c.Window.End = "2025-10-31"
	}
	if c.Window.Frequency == "" {
		c.Window.Frequency = "1d"
	}

	if c.Merge.SkipRows == nil {
		n := merger.DefaultSkipRows
		c.Merge.SkipRows = &n
	}
	if c.Merge.SupplyColumn == "" {
		c.Merge.SupplyColumn = merger.DefaultSupplyColumn
	}
	if c.Merge.Precision == 0 {
		c.Merge.Precision = merger.DefaultOptions().Precision
	}

	if len(c.Assets) == 0 {
		c.Assets = DefaultAssets()
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pipeline_runs.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// DefaultAssets returns the btc and eth jobs: circulating supply and active
// addresses, merged with the local price history of each coin, plus the
// price history with daily returns.
func DefaultAssets() []Asset {
	return []Asset{
		{
			Name:        "btc",
			PriceFile:   "bitcoin_dataset.csv",
			OutputFile:  "btc_full_dataset.csv",
			ReturnsFile: "bitcoin_dataset_with_returns.csv",
			MetricGroups: []MetricGroup{
				{Metrics: []string{"SplyCur"}, File: "btc_total_supply.csv"},
				{Metrics: []string{"AdrActCnt"}, File: "btc_active_addresses.csv"},
			},
		},
		{
			Name:        "eth",
			PriceFile:   "ethereum_dataset.csv",
			OutputFile:  "eth_full_dataset.csv",
			ReturnsFile: "ethereum_dataset_with_returns.csv",
			MetricGroups: []MetricGroup{
				{Metrics: []string{"SplyCur"}, File: "eth_total_supply.csv"},
				{Metrics: []string{"AdrActCnt"}, File: "eth_active_addresses.csv"},
			},
		},
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 || c.Retry.Throttle < 0 {
		return fmt.Errorf("retry.delay and retry.throttle must not be negative")
	}
	if c.DataSource.PageSize < 1 {
		return fmt.Errorf("data_source.page_size must be positive")
	}
	if *c.Merge.SkipRows < 0 {
		return fmt.Errorf("merge.skip_rows must not be negative")
	}
	if c.Merge.Precision < 1 {
		return fmt.Errorf("merge.precision must be positive")
	}
	win, err := c.CollectorWindow()
	if err != nil {
		return err
	}
	if len(c.Assets) == 0 {
		return errors.New("at least one asset is required")
	}

	names := make(map[string]bool)
	for i, a := range c.Assets {
		if a.Name == "" {
			return fmt.Errorf("assets[%d].name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("asset %q is listed twice", a.Name)
		}
		names[a.Name] = true
		if a.PriceFile == "" {
			return fmt.Errorf("asset %s: price_file is required", a.Name)
		}
		if a.OutputFile == "" {
			return fmt.Errorf("asset %s: output_file is required", a.Name)
		}
		if a.ReturnsFile != "" && (a.ReturnsFile == a.OutputFile || a.ReturnsFile == a.PriceFile) {
			return fmt.Errorf("asset %s: returns_file must differ from price_file and output_file", a.Name)
		}
		for j, g := range a.MetricGroups {
			if strings.TrimSpace(g.File) == "" {
				return fmt.Errorf("asset %s: metric_groups[%d].file is required", a.Name, j)
			}
			req := model.TimeSeriesRequest{
				Asset:     a.Name,
				Metrics:   g.Metrics,
				Start:     win.Start,
				End:       win.End,
				Frequency: win.Frequency,
			}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("asset %s: metric_groups[%d]: %w", a.Name, j, err)
			}
		}
	}
	return nil
}

// CollectorWindow parses the configured date window.
func (c *Config) CollectorWindow() (collector.Window, error) {
	start, err := model.NormalizeDate(c.Window.Start)
	if err != nil {
		return collector.Window{}, fmt.Errorf("window.start: %w", err)
	}
	end, err := model.NormalizeDate(c.Window.End)
	if err != nil {
		return collector.Window{}, fmt.Errorf("window.end: %w", err)
	}
	if end.Before(start) {
		return collector.Window{}, fmt.Errorf("window.start %s is after window.end %s", start, end)
	}
	return collector.Window{Start: start, End: end, Frequency: c.Window.Frequency}, nil
}

// RetryPolicy returns the configured fetch retry policy.
func (c *Config) RetryPolicy() collector.RetryPolicy {
	return collector.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
		Throttle:    c.Retry.Throttle,
	}
}

// MergerOptions returns the configured merger options.
func (c *Config) MergerOptions() merger.Options {
	return merger.Options{
		SkipRows:     *c.Merge.SkipRows,
		SupplyColumn: c.Merge.SupplyColumn,
		Precision:    c.Merge.Precision,
	}
}
