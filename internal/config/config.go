// Package config loads registry settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// EnvPrefix prefixes every environment override, e.g. FLUXOCTX_USER_DIR.
const EnvPrefix = "FLUXOCTX"

// env holds the settings that may be overridden from the environment.
type env struct {
	UserDir  string `envconfig:"USER_DIR"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// Load reads settings from the YAML file at path and applies environment
// overrides. An empty path skips the file.
func Load(path string) (api.Settings, error) {
	var settings api.Settings

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return api.Settings{}, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return api.Settings{}, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&settings); err != nil {
		return api.Settings{}, err
	}
	return settings, nil
}

func applyEnv(settings *api.Settings) error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("error processing environment configuration: %w", err)
	}
	if e.UserDir != "" {
		settings.UserDir = e.UserDir
	}
	if e.LogLevel != "" {
		settings.LogLevel = e.LogLevel
	}
	return nil
}

// LoadEnvFile loads variables from the given .env files (".env" when none
// are named) without overriding variables that are already set. Missing
// files are ignored.
func LoadEnvFile(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// ParseLevel maps a level name such as "debug" or "WARN" to a slog.Level.
// An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
