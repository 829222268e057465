package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Sources   SourcesConfig
	Fetch     FetchConfig
	Extract   ExtractConfig
	RateLimit RateLimitConfig
	Sync      SyncConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: ""
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// DatabaseConfig selects the draw store.
type DatabaseConfig struct {
	// URL is a postgres:// URL or a SQLite path / file: URI.
	URL string // default: "file:euromillions.db?_foreign_keys=on"
}

// SourcesConfig lists source URL templates. Templates may use {date}
// (2006-01-02), {ddmmyyyy} (02-01-2006) and {year}.
type SourcesConfig struct {
	// Latest pages are tried in order to sync the most recent draw.
	Latest []string `yaml:"latest"`
	// ByDate pages are tried first when syncing a specific draw date.
	ByDate []string `yaml:"by_date"`
}

// FetchConfig controls outbound requests to the source.
type FetchConfig struct {
	Timeout           time.Duration // default: 10s
	RequestsPerSecond float64       // default: 2
	Burst             int           // default: 1
	UserAgent         string
}

// ExtractConfig controls the extraction engine.
type ExtractConfig struct {
	// Window is the byte bound of the text scanned after a date anchor.
	Window int // default: 4000
}

// RateLimitConfig controls per-client limiting of the sync endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 0.2
	Burst             int     // default: 3
}

// SyncConfig controls the background sync loop.
type SyncConfig struct {
	// Interval between background syncs of the latest draw. Zero disables it.
	Interval time.Duration // default: 0
}

// LogConfig controls google/logger output.
type LogConfig struct {
	Verbose bool
	File    string
}

const (
	DefaultSourceURL   = "https://www.euro-millions.com/results"
	DefaultDatabaseURL = "file:euromillions.db?_foreign_keys=on"
)

var (
	defaultLatest = []string{
		"https://www.euro-millions.com/results-history-{year}",
	}
	defaultByDate = []string{
		"https://www.euro-millions.com/results/{ddmmyyyy}",
	}
)

// Load reads a .env file when present, then configuration from environment
// variables with defaults, then the optional sources file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("HOST", ""),
			Port: envIntOr("PORT", 8080),
			Mode: envOr("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			URL: envOr("DATABASE_URL", DefaultDatabaseURL),
		},
		Sources: SourcesConfig{
			Latest: append([]string{envOr("EURO_SOURCE_URL", DefaultSourceURL)},
				envSliceOr("EURO_FALLBACK_URLS", defaultLatest)...),
			ByDate: envSliceOr("EURO_DATE_URLS", defaultByDate),
		},
		Fetch: FetchConfig{
			Timeout:           envDurationOr("EURO_HTTP_TIMEOUT", 10*time.Second),
			RequestsPerSecond: envFloatOr("EURO_FETCH_RPS", 2),
			Burst:             envIntOr("EURO_FETCH_BURST", 1),
			UserAgent:         os.Getenv("EURO_USER_AGENT"),
		},
		Extract: ExtractConfig{
			Window: envIntOr("EURO_WINDOW_CHARS", 4000),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("EURO_SYNC_RPS", 0.2),
			Burst:             envIntOr("EURO_SYNC_BURST", 3),
		},
		Sync: SyncConfig{
			Interval: envDurationOr("EURO_SYNC_INTERVAL", 0),
		},
		Log: LogConfig{
			Verbose: envBoolOr("EURO_LOG_VERBOSE", false),
			File:    os.Getenv("EURO_LOG_FILE"),
		},
	}

	if path := os.Getenv("EURO_SOURCES_FILE"); path != "" {
		sources, err := LoadSources(path)
		if err != nil {
			return nil, err
		}
		if len(sources.Latest) > 0 {
			cfg.Sources.Latest = sources.Latest
		}
		if len(sources.ByDate) > 0 {
			cfg.Sources.ByDate = sources.ByDate
		}
	}
	return cfg, nil
}

// LoadSources reads source templates from a YAML file.
func LoadSources(path string) (SourcesConfig, error) {
	var s SourcesConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("config: read sources file: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("config: parse sources file %s: %w", path, err)
	}
	return s, nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// LatestURLs expands the latest-draw templates for the given day.
func (s SourcesConfig) LatestURLs(now time.Time) []string {
	return expandAll(s.Latest, now)
}

// DateURLs expands the templates for a specific draw date: the by-date
// pages first, then the latest pages, which may still list the draw.
func (s SourcesConfig) DateURLs(date time.Time) []string {
	return expandAll(append(append([]string(nil), s.ByDate...), s.Latest...), date)
}

// Expand fills the placeholders of one template.
func Expand(tmpl string, d time.Time) string {
	return strings.NewReplacer(
		"{date}", d.Format("2006-01-02"),
		"{ddmmyyyy}", d.Format("02-01-2006"),
		"{year}", strconv.Itoa(d.Year()),
	).Replace(tmpl)
}

func expandAll(templates []string, d time.Time) []string {
	seen := make(map[string]bool, len(templates))
	urls := make([]string, 0, len(templates))
	for _, t := range templates {
		u := strings.TrimSpace(Expand(t, d))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
