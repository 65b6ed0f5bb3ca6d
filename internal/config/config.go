package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Library     LibraryConfig     `toml:"library"`
	Logging     LoggingConfig     `toml:"logging"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
	Slskd       SlskdConfig       `toml:"slskd"`
	Acquisition AcquisitionConfig `toml:"acquisition"`
	Ngrok       NgrokConfig       `toml:"ngrok"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
	// Optional bcrypt hash protecting the API with basic auth.
	// Empty disables authentication (single-operator default).
	AdminPasswordHash string `toml:"admin_password_hash"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains music library configuration
type LibraryConfig struct {
	Path             string   `toml:"path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// MusicBrainzConfig contains metadata resolver configuration.
// MusicBrainz expects a descriptive user agent and at most one
// request per second from well-behaved clients.
type MusicBrainzConfig struct {
	AppName           string `toml:"app_name"`
	AppVersion        string `toml:"app_version"`
	Contact           string `toml:"contact"`
	RequestIntervalMS int    `toml:"request_interval_ms"`
	CacheTTLMinutes   int    `toml:"cache_ttl_minutes"`
}

// SlskdConfig contains Soulseek (slskd) client configuration. The API
// key may also come from the SLSKD_API_KEY environment variable.
type SlskdConfig struct {
	Enabled             bool   `toml:"enabled"`
	URL                 string `toml:"url"`
	APIKey              string `toml:"api_key"`
	DownloadDir         string `toml:"download_dir"`
	SearchTimeoutSec    int    `toml:"search_timeout_seconds"`
	SearchMinWaitSec    int    `toml:"search_min_wait_seconds"`
	StuckTimeoutMinutes int    `toml:"stuck_timeout_minutes"`
}

// AcquisitionConfig carries the candidate scoring policy. The values
// are tunable because the weights are heuristics, not derived.
type AcquisitionConfig struct {
	PreferredFormat string `toml:"preferred_format"`
	MinFileBytes    int64  `toml:"min_file_bytes"`
	MaxFileBytes    int64  `toml:"max_file_bytes"`

	ExactTrackScore      int `toml:"exact_track_score"`
	OffByOneTrackScore   int `toml:"off_by_one_track_score"`
	OffByTwoTrackScore   int `toml:"off_by_two_track_score"`
	OffByFiveTrackScore  int `toml:"off_by_five_track_score"`
	TrackMismatchPenalty int `toml:"track_mismatch_penalty"`
	BothMatchScore       int `toml:"both_match_score"`
	ArtistMatchScore     int `toml:"artist_match_score"`
	FormatBonus          int `toml:"format_bonus"`
	SizeBandBonus        int `toml:"size_band_bonus"`
	TinySetPenalty       int `toml:"tiny_set_penalty"`
	SmallSetPenalty      int `toml:"small_set_penalty"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Database: DatabaseConfig{
			Path: "./audiosource.db",
		},
		Library: LibraryConfig{
			Path:             "./music",
			SupportedFormats: []string{".mp3", ".flac", ".m4a", ".aac", ".ogg", ".wav", ".wma", ".aiff"},
			WatchForChanges:  true,
			ScanOnStartup:    false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		MusicBrainz: MusicBrainzConfig{
			AppName:           "AudioSource",
			AppVersion:        "0.1.0",
			Contact:           "audiosource@localhost",
			RequestIntervalMS: 1100,
			CacheTTLMinutes:   60,
		},
		Slskd: SlskdConfig{
			Enabled:             false,
			URL:                 "http://localhost:5030",
			APIKey:              "",
			DownloadDir:         "/downloads",
			SearchTimeoutSec:    45,
			SearchMinWaitSec:    10,
			StuckTimeoutMinutes: 5,
		},
		Acquisition: AcquisitionConfig{
			PreferredFormat:      ".mp3",
			MinFileBytes:         6_000_000,
			MaxFileBytes:         15_000_000,
			ExactTrackScore:      50,
			OffByOneTrackScore:   35,
			OffByTwoTrackScore:   25,
			OffByFiveTrackScore:  10,
			TrackMismatchPenalty: 10,
			BothMatchScore:       5,
			ArtistMatchScore:     3,
			FormatBonus:          10,
			SizeBandBonus:        8,
			TinySetPenalty:       15,
			SmallSetPenalty:      5,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets secrets live in the environment (or a .env
// file loaded at startup) instead of the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SLSKD_API_KEY"); v != "" {
		c.Slskd.APIKey = v
	}
	if v := os.Getenv("SLSKD_URL"); v != "" {
		c.Slskd.URL = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); c.Ngrok.AuthToken == "" && v != "" {
		c.Ngrok.AuthToken = v
	}
	c.Slskd.URL = strings.TrimRight(c.Slskd.URL, "/")
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# AudioSource Configuration
# This file contains all configuration options for the AudioSource
# library manager. Edit the values below to customize your setup.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Library.Path == "" {
		return fmt.Errorf("music library path cannot be empty")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Slskd.Enabled {
		if c.Slskd.URL == "" {
			return fmt.Errorf("slskd URL cannot be empty when slskd is enabled")
		}
		if c.Slskd.APIKey == "" {
			return fmt.Errorf("slskd API key required when slskd is enabled (config or SLSKD_API_KEY)")
		}
	}
	if c.Slskd.SearchTimeoutSec <= 0 {
		return fmt.Errorf("slskd search timeout must be positive")
	}
	if c.Slskd.StuckTimeoutMinutes <= 0 {
		return fmt.Errorf("slskd stuck timeout must be positive")
	}

	if c.Acquisition.MinFileBytes < 0 || c.Acquisition.MaxFileBytes < c.Acquisition.MinFileBytes {
		return fmt.Errorf("acquisition file size band is invalid")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsFormatSupported checks if an audio file extension is supported
func (c *Config) IsFormatSupported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supported := range c.Library.SupportedFormats {
		if supported == ext {
			return true
		}
	}
	return false
}
