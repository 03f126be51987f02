package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	DBPath        string `env:"PORTALRUN_DB_PATH" envDefault:"./portalrun.db"`
	JWTSecret     string `env:"PORTALRUN_JWT_SECRET" envDefault:"dev-only-secret-do-not-use-in-prod"`
	UpdatesPerMin int    `env:"PORTALRUN_UPDATES_PER_MIN" envDefault:"120"`
	UpdateBurst   int    `env:"PORTALRUN_UPDATE_BURST" envDefault:"20"`
	LogPretty     bool   `env:"PORTALRUN_LOG_PRETTY" envDefault:"true"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
