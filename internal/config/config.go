package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pigeon/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	UserID         string  `toml:"user_id"`
	Daemon         Daemon  `toml:"daemon"`
	Auth           Auth    `toml:"auth"`
	Storage        Storage `toml:"storage"`
}

// Daemon holds pigeond runtime settings.
type Daemon struct {
	ListenAddr        string   `toml:"listen_addr"`
	RefreshInterval   duration `toml:"refresh_interval"`
	SuppressionWindow duration `toml:"suppression_window"`
	SeedDemoData      bool     `toml:"seed_demo_data"`
}

// Auth holds token settings. Secret signs access tokens; BootstrapKey
// gates the token mint endpoint for local clients.
type Auth struct {
	Secret       string   `toml:"secret"`
	BootstrapKey string   `toml:"bootstrap_key"`
	TokenTTL     duration `toml:"token_ttl"`
}

// Storage holds object storage settings. An empty endpoint disables
// uploads.
type Storage struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
}

// duration lets TOML carry values like "5s" and "30m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		UserID:         "self",
		Daemon: Daemon{
			ListenAddr:        "127.0.0.1:7345",
			RefreshInterval:   duration(30 * time.Second),
			SuppressionWindow: duration(5 * time.Second),
		},
		Auth: Auth{
			TokenTTL: duration(24 * time.Hour),
		},
		Storage: Storage{
			Bucket: "pigeon-media",
		},
	}
}

// Load reads config from the given path, layered over defaults. Returns
// an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Refresh returns the periodic refresh interval as a time.Duration.
func (d Daemon) Refresh() time.Duration { return time.Duration(d.RefreshInterval) }

// Suppression returns the self-echo window as a time.Duration.
func (d Daemon) Suppression() time.Duration { return time.Duration(d.SuppressionWindow) }

// TTL returns the token lifetime as a time.Duration.
func (a Auth) TTL() time.Duration { return time.Duration(a.TokenTTL) }
