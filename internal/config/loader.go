package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvConfigPath names the environment variable pointing at the YAML
// configuration file.
const EnvConfigPath = "LEADERBOARD_CONFIG"

const envPrefix = "LEADERBOARD_"

// Load builds a Config by layering defaults, an optional YAML file, and
// environment variables.
// Order of precedence (low -> high):
//  1. defaults
//  2. file (YAML) if LEADERBOARD_CONFIG is set
//  3. env (prefix LEADERBOARD_, e.g. LEADERBOARD_CLIENT_SECRET)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// LEADERBOARD_HTTP_ADDRESS -> http_address; the config path is the
	// reserved word, so it is not treated as a setting.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if s == strings.ToLower(strings.TrimPrefix(EnvConfigPath, envPrefix)) {
			return ""
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.HTTPAddress == "" {
		return nil, errors.New("http_address must not be empty")
	}
	if cfg.PostgresURL == "" {
		return nil, errors.New("postgres_url must not be empty")
	}
	if cfg.FetchMaxAttempts < 1 {
		return nil, errors.New("fetch_max_attempts must be at least 1")
	}
	return &cfg, nil
}
