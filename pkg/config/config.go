package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads an optional .env file from the working directory and then
// populates cfg from environment variables with the given prefix.
func Load(prefix string, cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	if err := envconfig.Process(prefix, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Logging is embedded by every service config.
type Logging struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}
