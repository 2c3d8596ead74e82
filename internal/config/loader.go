package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "TNVS_"
	envConfigPath  = "TNVS_CONFIG"
	envDotEnvPath  = "TNVS_ENV_FILE"
	defaultEnvFile = ".env"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New(ctx))
//  2. a .env file (TNVS_ENV_FILE, default ".env"); it never overrides the real environment
//  3. YAML from TNVS_CONFIG
//  4. env vars with the TNVS_ prefix
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	envFile := os.Getenv(envDotEnvPath)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: env file %s: %w", ErrLoadConfig, envFile, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TNVS_QUEUE_SIZE -> queue_size. Underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// TNVS_CONFIG and TNVS_ENV_FILE point at sources; they are not settings.
	k.Delete("config")
	k.Delete("env_file")

	cfg := *base
	// Lists replace the defaults wholesale instead of merging element by element.
	if k.Exists("tiers") {
		cfg.Tiers = nil
	}
	if k.Exists("operators") {
		cfg.Operators = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
