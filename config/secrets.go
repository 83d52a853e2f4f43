package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Secrets never live in the config file.
type Secrets struct {
	OandaToken     string `env:"OANDA_TOKEN"`
	OandaAccountID string `env:"OANDA_ACCOUNT_ID"`
	SMTPUsername   string `env:"SMTP_USERNAME"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
}

// LoadSecrets reads the given .env files, if present, then the process
// environment. Variables already set in the environment win.
func LoadSecrets(files ...string) (Secrets, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// Check verifies the secrets the configured bindings need.
func (s Secrets) Check(c *Config) error {
	if c.Broker.Kind == "oanda" && (s.OandaToken == "" || s.OandaAccountID == "") {
		return fmt.Errorf("%w: broker oanda requires OANDA_TOKEN and OANDA_ACCOUNT_ID", ErrInvalid)
	}
	return nil
}
