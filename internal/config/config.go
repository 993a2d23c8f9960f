// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all collector knobs loaded via Viper.
type Config struct {
	OutDir      string          `mapstructure:"outdir"`
	LogsDir     string          `mapstructure:"logs_dir"`
	RunsDir     string          `mapstructure:"runs_dir"`
	Development bool            `mapstructure:"development"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Search      SearchConfig    `mapstructure:"search"`
	WorldBank   WorldBankConfig `mapstructure:"worldbank"`
}

// HTTPConfig configures the politeness-aware fetch client.
type HTTPConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	BackoffInitialMs  int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int    `mapstructure:"backoff_max_ms"`
}

// SearchConfig governs the gov-search crawl.
type SearchConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Source    string `mapstructure:"source"`
	Query     string `mapstructure:"query"`
	MaxPages  int    `mapstructure:"max_pages"`
	PageSize  int    `mapstructure:"page_size"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// WorldBankConfig governs indicator collection.
type WorldBankConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Country    string `mapstructure:"country"`
	Indicators string `mapstructure:"indicators"`
	StartYear  int    `mapstructure:"start_year"`
	EndYear    int    `mapstructure:"end_year"`
}

// Codes splits the comma-separated indicator list, dropping empties.
func (w WorldBankConfig) Codes() []string {
	var codes []string
	for _, c := range strings.Split(w.Indicators, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// Timeout converts the HTTP timeout into a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff into a duration.
func (h HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(h.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling into a duration.
func (h HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(h.BackoffMaxMs) * time.Millisecond
}

// Load builds a Config from disk, environment, and (optionally) bound
// command-line flags, in ascending precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOVPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("outdir", "data")
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("runs_dir", "runs")
	v.SetDefault("development", true)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.requests_per_minute", 12)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("search.base_url", "https://sousuo.gov.cn/s.htm")
	v.SetDefault("search.source", "sousuo.gov.cn")
	v.SetDefault("search.query", "金融 五篇 大文章")
	v.SetDefault("search.max_pages", 3)
	v.SetDefault("search.page_size", 20)
	v.SetDefault("worldbank.base_url", "https://api.worldbank.org/v2")
	v.SetDefault("worldbank.country", "CHN")
	v.SetDefault("worldbank.indicators", "IP.PAT.RESD,EN.ATM.CO2E.PC,SP.POP.65UP.TO.ZS,IT.NET.USER.ZS")
	v.SetDefault("worldbank.start_year", 2000)
	v.SetDefault("worldbank.end_year", time.Now().Year())
}

// bindFlags maps CLI flags onto config keys so explicit flags win.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"outdir":        "outdir",
		"logs":          "logs_dir",
		"runs":          "runs_dir",
		"metrics-addr":  "metrics_addr",
		"rpm":           "http.requests_per_minute",
		"timeout":       "http.timeout_seconds",
		"max-pages":     "search.max_pages",
		"query":         "search.query",
		"start-date":    "search.start_date",
		"end-date":      "search.end_date",
		"wb-country":    "worldbank.country",
		"wb-indicators": "worldbank.indicators",
		"wb-start-year": "worldbank.start_year",
		"wb-end-year":   "worldbank.end_year",
	}
	for flagName, key := range bindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.OutDir == "" {
		return fmt.Errorf("outdir must be set")
	}
	if c.HTTP.RequestsPerMinute <= 0 {
		return fmt.Errorf("http.requests_per_minute must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Search.MaxPages <= 0 {
		return fmt.Errorf("search.max_pages must be > 0")
	}
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be > 0")
	}
	if c.WorldBank.Country == "" {
		return fmt.Errorf("worldbank.country must be set")
	}
	return nil
}
