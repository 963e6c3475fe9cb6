package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.Timezone != "Asia/Qatar" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perms = %o, want 600", perm)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.Anchors["ramadan"] = AnchorConfig{StartDate: "2024-03-11", Length: 30}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", PasswordHash: "$argon2id$..."}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", loaded.Timezone)
	}
	if loaded.Anchors["ramadan"].Length != 30 {
		t.Fatalf("anchors lost: %+v", loaded.Anchors)
	}
	if loaded.BasicAuth == nil || loaded.BasicAuth.Username != "admin" {
		t.Fatalf("basic auth lost: %+v", loaded.BasicAuth)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{WeekStart: "wednesday", FajrAngle: -3}
	cfg.Normalize()

	if cfg.WeekStart != "monday" {
		t.Fatalf("week start = %q", cfg.WeekStart)
	}
	if cfg.FajrAngle != 18 {
		t.Fatalf("fajr angle = %v", cfg.FajrAngle)
	}
	if cfg.RefreshCron == "" || cfg.GeocodeEndpoint == "" || cfg.Colors.Night == "" {
		t.Fatal("defaults not filled")
	}
	if cfg.Anchors == nil {
		t.Fatal("anchors map not initialized")
	}
}

func TestNormalizeAnchorKeys(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Anchors = map[string]AnchorConfig{
		"Ramaḍān": {StartDate: "2024-03-11", Length: 30},
		"Sha'ban": {StartDate: "2024-02-11", Length: 29},
	}
	cfg.Normalize()

	if len(cfg.Anchors) != 2 {
		t.Fatalf("anchors = %v", cfg.Anchors)
	}
	if _, ok := cfg.Anchors["ramadan"]; !ok {
		t.Fatalf("diacritic key not normalized: %v", cfg.Anchors)
	}
	if _, ok := cfg.Anchors["shaban"]; !ok {
		t.Fatalf("apostrophe key not normalized: %v", cfg.Anchors)
	}
	if _, ok := cfg.Anchors["Ramaḍān"]; ok {
		t.Fatal("raw spelling survived normalization")
	}
}

func TestModelAnchorsNormalizesKeys(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Qatar")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}

	// Hand-built configs never pass through Normalize, so the lookup
	// boundary folds keys as well.
	cfg := DefaultConfig()
	cfg.Anchors = map[string]AnchorConfig{
		"Dhū al-Ḥijjah": {StartDate: "2024-06-07", Length: 29},
	}

	anchors := cfg.ModelAnchors(loc)
	if _, ok := anchors["dhu alhijjah"]; !ok {
		t.Fatalf("anchor key not folded: %v", anchors)
	}
}

func TestModelAnchorsDropsInvalid(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Qatar")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Anchors = map[string]AnchorConfig{
		"ramadan": {StartDate: "2024-03-11", Length: 30},
		"rajab":   {StartDate: "13-01-2024", Length: 30}, // wrong date format
		"shaban":  {StartDate: "2024-02-11", Length: 31}, // impossible length
	}

	anchors := cfg.ModelAnchors(loc)

	if len(anchors) != 1 {
		t.Fatalf("expected only the valid anchor, got %v", anchors)
	}
	a := anchors["ramadan"]
	want := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	if !a.Start.Equal(want) || a.Length != 30 {
		t.Fatalf("anchor = %+v", a)
	}
}
