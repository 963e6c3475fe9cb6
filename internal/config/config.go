package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zakhtar8/aamalcalendar/internal/dataset"
	"github.com/zakhtar8/aamalcalendar/internal/model"
)

// AnchorConfig is the YAML form of a model.MonthAnchor.
type AnchorConfig struct {
	// StartDate is the civil date of lunar day 1, "YYYY-MM-DD" in the
	// configured timezone.
	StartDate string `yaml:"start_date" json:"start_date"`
	// Length is the month's day count, 29 or 30.
	Length int `yaml:"length" json:"length"`
}

// LocationConfig holds the observer coordinates used for prayer-time
// day boundaries.
type LocationConfig struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
// PasswordHash (Argon2id, as produced by the hash-password subcommand) is
// preferred; Password is a legacy plaintext fallback.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"password_hash,omitempty"`
}

// ColorsConfig maps event color tags onto hex values for the UI and the ICS
// export. Tag assignment itself is fixed by rule kind and period; only the
// palette is configurable.
type ColorsConfig struct {
	MonthWide string `yaml:"month_wide" json:"month_wide"`
	Day       string `yaml:"day" json:"day"`
	Night     string `yaml:"night" json:"night"`
	AllDay    string `yaml:"all_day" json:"all_day"`
}

// Hex resolves a color tag to its configured hex value.
func (c ColorsConfig) Hex(tag model.ColorTag) string {
	switch tag {
	case model.ColorMonthWide:
		return c.MonthWide
	case model.ColorDay:
		return c.Day
	case model.ColorNight:
		return c.Night
	default:
		return c.AllDay
	}
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all events are expressed in (e.g. "Asia/Qatar").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday the calendar grid starts on:
	// "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule (e.g. "0 0 * * *") for rebuilding
	// the expanded schedule cache.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Dataset is the path of the observance-rule JSON document. Empty means
	// the embedded default dataset.
	Dataset string `yaml:"dataset,omitempty" json:"dataset,omitempty"`

	// Location is the observer position for dawn/dusk calculation.
	Location LocationConfig `yaml:"location" json:"location"`

	// FajrAngle is the solar depression angle (degrees) marking dawn.
	FajrAngle float64 `yaml:"fajr_angle" json:"fajr_angle"`

	// GeocodeEndpoint is the upstream search service proxied by /api/geocode.
	GeocodeEndpoint string `yaml:"geocode_endpoint" json:"geocode_endpoint"`

	// Anchors maps normalized lunar month names to their calendar anchors.
	// Months without an anchor simply produce no events.
	Anchors map[string]AnchorConfig `yaml:"anchors" json:"anchors"`

	Colors ColorsConfig `yaml:"colors" json:"colors"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Qatar",
		WeekStart:   "monday",
		RefreshCron: "0 0 * * *",
		Location: LocationConfig{
			Name:      "Doha",
			Latitude:  25.2854,
			Longitude: 51.5310,
		},
		FajrAngle:       18,
		GeocodeEndpoint: "https://nominatim.openstreetmap.org/search",
		Anchors:         map[string]AnchorConfig{},
		Colors:          defaultColors(),
		BasicAuth:       nil,
	}
}

func defaultColors() ColorsConfig {
	return ColorsConfig{
		MonthWide: "#7c4dff",
		Day:       "#ffb300",
		Night:     "#3949ab",
		AllDay:    "#00897b",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Qatar"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	case "":
		c.WeekStart = "monday"
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 0 * * *"
	}
	if c.FajrAngle <= 0 || c.FajrAngle >= 30 {
		c.FajrAngle = 18
	}
	if c.GeocodeEndpoint == "" {
		c.GeocodeEndpoint = "https://nominatim.openstreetmap.org/search"
	}
	if c.Anchors == nil {
		c.Anchors = map[string]AnchorConfig{}
	}
	// Anchor keys fold to the same canonical form as rule months, so a
	// config spelled "Ramaḍān" or "Sha'ban" still matches its rules.
	if len(c.Anchors) > 0 {
		normalized := make(map[string]AnchorConfig, len(c.Anchors))
		for month, ac := range c.Anchors {
			if key := dataset.NormalizeMonth(month); key != "" {
				normalized[key] = ac
			}
		}
		c.Anchors = normalized
	}
	def := defaultColors()
	if c.Colors.MonthWide == "" {
		c.Colors.MonthWide = def.MonthWide
	}
	if c.Colors.Day == "" {
		c.Colors.Day = def.Day
	}
	if c.Colors.Night == "" {
		c.Colors.Night = def.Night
	}
	if c.Colors.AllDay == "" {
		c.Colors.AllDay = def.AllDay
	}
}

// Loc resolves the configured timezone, falling back to time.Local when the
// name does not resolve.
func (c *Config) Loc() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ModelAnchors converts the YAML anchor map into model.MonthAnchor values in
// the given timezone, keyed by normalized month name. Entries with an
// unparseable date or an implausible length are dropped: a broken anchor
// behaves like a missing one.
func (c *Config) ModelAnchors(loc *time.Location) map[string]model.MonthAnchor {
	out := make(map[string]model.MonthAnchor, len(c.Anchors))
	for month, ac := range c.Anchors {
		a, err := ac.Model(loc)
		if err != nil {
			continue
		}
		out[dataset.NormalizeMonth(month)] = a
	}
	return out
}

// Model converts one AnchorConfig into a model.MonthAnchor.
func (ac AnchorConfig) Model(loc *time.Location) (model.MonthAnchor, error) {
	t, err := time.ParseInLocation("2006-01-02", ac.StartDate, loc)
	if err != nil {
		return model.MonthAnchor{}, fmt.Errorf("anchor start_date %q: %w", ac.StartDate, err)
	}
	if ac.Length != 29 && ac.Length != 30 {
		return model.MonthAnchor{}, fmt.Errorf("anchor length %d: must be 29 or 30", ac.Length)
	}
	return model.MonthAnchor{Start: t, Length: ac.Length}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write a
//     default config with 0600 perms, and return the default config.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".aamalcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
