package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single event feed.
type FeedConfig struct {
	// URL is an http(s) URL, file:// URL or filesystem path.
	URL string `yaml:"url" toml:"url" json:"url"`
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" toml:"id" json:"id"`
	// Format is "json" (default) or "ics".
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Features toggles the optional parts of the calendar page. The four
// combinations in use are the page variants (with/without map embed,
// recurrence, mobile view and platform map links).
type Features struct {
	MapEmbed      bool `yaml:"map_embed" toml:"map_embed" json:"map_embed"`
	Recurrence    bool `yaml:"recurrence" toml:"recurrence" json:"recurrence"`
	MobileView    bool `yaml:"mobile_view" toml:"mobile_view" json:"mobile_view"`
	PlatformLinks bool `yaml:"platform_links" toml:"platform_links" json:"platform_links"`
}

// GeocodeConfig configures location lookups for the map embed.
type GeocodeConfig struct {
	// Endpoint is a Nominatim-compatible search URL.
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	// UserAgent identifies this service to the geocoder.
	UserAgent string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	// CachePath is the SQLite file for cached lookups. Empty keeps the
	// cache in memory.
	CachePath string `yaml:"cache_path" toml:"cache_path" json:"cache_path"`
	// MaxAgeDays is how long a cached lookup is trusted.
	MaxAgeDays int `yaml:"max_age_days" toml:"max_age_days" json:"max_age_days"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API. Password
// may be plain text or a bcrypt hash ("$2a$...", "$2b$...", "$2y$...").
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "today" and reads date-only
	// values (e.g. "Europe/Berlin"). Empty uses the host zone.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for reloading the feeds.
	RefreshCron string `yaml:"refresh" toml:"refresh" json:"refresh"`

	// UpcomingLimit caps the upcoming list.
	UpcomingLimit int `yaml:"upcoming_limit" toml:"upcoming_limit" json:"upcoming_limit"`

	// Feeds is the list of event feeds, merged in order.
	Feeds []FeedConfig `yaml:"feeds" toml:"feeds" json:"feeds"`

	Features Features      `yaml:"features" toml:"features" json:"features"`
	Geocode  GeocodeConfig `yaml:"geocode" toml:"geocode" json:"geocode"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen        = "127.0.0.1:8080"
	defaultRefreshCron   = "*/15 * * * *"
	defaultUpcomingLimit = 50
	defaultGeoMaxAgeDays = 30
	defaultGeoEndpoint   = "https://nominatim.openstreetmap.org/search"
	defaultGeoUserAgent  = "calfeed/0.1"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		LogLevel:      "info",
		RefreshCron:   defaultRefreshCron,
		UpcomingLimit: defaultUpcomingLimit,
		Feeds: []FeedConfig{
			{ID: "events", URL: "./data/events-all.json", Format: "json"},
		},
		Features: Features{
			MapEmbed:   true,
			Recurrence: true,
		},
		Geocode: GeocodeConfig{
			Endpoint:   defaultGeoEndpoint,
			UserAgent:  defaultGeoUserAgent,
			MaxAgeDays: defaultGeoMaxAgeDays,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = defaultUpcomingLimit
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		f.Format = strings.ToLower(strings.TrimSpace(f.Format))
		if f.Format == "" {
			f.Format = "json"
		}
		if f.ID == "" {
			f.ID = f.URL
		}
	}
	if c.Geocode.Endpoint == "" {
		c.Geocode.Endpoint = defaultGeoEndpoint
	}
	if c.Geocode.UserAgent == "" {
		c.Geocode.UserAgent = defaultGeoUserAgent
	}
	if c.Geocode.MaxAgeDays <= 0 {
		c.Geocode.MaxAgeDays = defaultGeoMaxAgeDays
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	for i, f := range c.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: url is empty", i))
		}
		if f.Format != "json" && f.Format != "ics" {
			errs = append(errs, fmt.Errorf("feeds[%d]: unknown format %q", i, f.Format))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given path. Files ending in ".toml"
// are read as TOML, everything else as YAML.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - decode it
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Encodes cfg as TOML or YAML depending on the extension.
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

	data, err := encode(path, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func encode(path string, cfg *Config) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
