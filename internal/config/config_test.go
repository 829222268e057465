package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "EURO_SOURCE_URL", "EURO_FALLBACK_URLS", "EURO_SOURCES_FILE", "PORT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if cfg.Database.URL != DefaultDatabaseURL {
		t.Errorf("Expected default database URL, but got %q", cfg.Database.URL)
	}
	if cfg.Sources.Latest[0] != DefaultSourceURL {
		t.Errorf("Expected %s as first latest source, but got %v", DefaultSourceURL, cfg.Sources.Latest)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("Expected :8080, but got %s", cfg.Server.Addr())
	}
	if cfg.Extract.Window != 4000 || cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("Expected window 4000 and timeout 10s, but got %d and %s", cfg.Extract.Window, cfg.Fetch.Timeout)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/euro")
	t.Setenv("EURO_SOURCE_URL", "https://example.com/latest")
	t.Setenv("EURO_FALLBACK_URLS", " https://mirror.example.com/{year} ,, https://other.example.com ")
	t.Setenv("EURO_HTTP_TIMEOUT", "3s")
	t.Setenv("EURO_WINDOW_CHARS", "not-a-number")
	t.Setenv("EURO_SOURCES_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	want := []string{"https://example.com/latest", "https://mirror.example.com/{year}", "https://other.example.com"}
	if !reflect.DeepEqual(cfg.Sources.Latest, want) {
		t.Errorf("Expected %v, but got %v", want, cfg.Sources.Latest)
	}
	if cfg.Fetch.Timeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, but got %s", cfg.Fetch.Timeout)
	}
	if cfg.Extract.Window != 4000 {
		t.Errorf("Expected invalid window to fall back to 4000, but got %d", cfg.Extract.Window)
	}
}

func TestLoad_SourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := "latest:\n  - https://a.example.com/results\nby_date:\n  - https://a.example.com/results/{date}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Expected no error writing file, but got %v", err)
	}
	t.Setenv("EURO_SOURCES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if !reflect.DeepEqual(cfg.Sources.Latest, []string{"https://a.example.com/results"}) {
		t.Errorf("Expected latest sources from file, but got %v", cfg.Sources.Latest)
	}
	if !reflect.DeepEqual(cfg.Sources.ByDate, []string{"https://a.example.com/results/{date}"}) {
		t.Errorf("Expected by-date sources from file, but got %v", cfg.Sources.ByDate)
	}

	t.Run("Test malformed file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		os.WriteFile(bad, []byte("latest: [unclosed"), 0o600)
		t.Setenv("EURO_SOURCES_FILE", bad)
		if _, err := Load(); err == nil {
			t.Error("Expected an error for a malformed sources file, but got nil")
		}
	})
}

func TestSourcesConfig_URLs(t *testing.T) {
	s := SourcesConfig{
		Latest: []string{"https://x.example.com/results", "https://x.example.com/history-{year}"},
		ByDate: []string{"https://x.example.com/results/{ddmmyyyy}", "https://x.example.com/d/{date}", "https://x.example.com/results"},
	}
	d := time.Date(2025, time.November, 4, 0, 0, 0, 0, time.UTC)

	want := []string{
		"https://x.example.com/results/04-11-2025",
		"https://x.example.com/d/2025-11-04",
		"https://x.example.com/results",
		"https://x.example.com/history-2025",
	}
	if got := s.DateURLs(d); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
	if got := s.LatestURLs(d); !reflect.DeepEqual(got, []string{"https://x.example.com/results", "https://x.example.com/history-2025"}) {
		t.Errorf("Expected expanded latest URLs, but got %v", got)
	}
}
