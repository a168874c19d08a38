package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration. All values come from environment
// variables so secrets never live in the binary or the repository.
type Config struct {
	Addr  string `env:"DOCUCLOUD_ADDR" envDefault:":8080"`
	PGDSN string `env:"DOCUCLOUD_PG_DSN"`

	AccessSecret  string        `env:"DOCUCLOUD_ACCESS_SECRET"`
	RefreshSecret string        `env:"DOCUCLOUD_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"DOCUCLOUD_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"DOCUCLOUD_REFRESH_TTL" envDefault:"168h"`
	ResetTTL      time.Duration `env:"DOCUCLOUD_RESET_TTL" envDefault:"15m"`

	BaseURL      string `env:"DOCUCLOUD_BASE_URL" envDefault:"http://localhost:8080"`
	ResetURL     string `env:"DOCUCLOUD_RESET_URL" envDefault:"http://localhost:3000/reset-password"`
	PresignTTL   time.Duration `env:"DOCUCLOUD_PRESIGN_TTL" envDefault:"10m"`
	PresignBase  string `env:"DOCUCLOUD_PRESIGN_BASE" envDefault:"http://localhost:9000"`
	PresignSecret string `env:"DOCUCLOUD_PRESIGN_SECRET"`

	RateBurst  int `env:"DOCUCLOUD_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"DOCUCLOUD_RATE_PER_SEC" envDefault:"10"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("config: DOCUCLOUD_ACCESS_SECRET and DOCUCLOUD_REFRESH_SECRET are required")
	}
	// A leaked refresh key must not be able to forge access tokens.
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("config: access and refresh secrets must differ")
	}
	if c.PresignSecret == "" {
		return errors.New("config: DOCUCLOUD_PRESIGN_SECRET is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	return nil
}
