package tracelog

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"gitlab.com/tozd/go/errors"
)

// EnvPrefix prefixes the environment variables read by LoadConfig.
const EnvPrefix = "TRACELOG_"

// Config is the complete logger configuration.
type Config struct {
	Level     string          `koanf:"level"`
	Formatter FormatterConfig `koanf:"formatter"`
}

// DefaultConfig returns the configuration the package starts with.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Formatter: defaultFormatterConfig,
	}
}

// LoadConfig builds a Config from defaults, then the YAML document in
// content (may be empty), then TRACELOG_* environment variables.
//
// Environment variables map to keys by dropping the prefix, lowercasing
// and splitting on the first underscore:
//
//	TRACELOG_LEVEL                     -> level
//	TRACELOG_FORMATTER_MAX_STACK_FRAMES -> formatter.max_stack_frames
func LoadConfig(content []byte) (Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, errors.Wrap(err, "failed to parse config")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, errors.Wrap(err, "failed to load environment variables")
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}

	if _, err := parseLevel(cfg.Level); err != nil {
		return Config{}, errors.WithDetails(err, "source", "config")
	}
	if cfg.Formatter.MaxStackFrames < 0 {
		return Config{}, errors.WithDetails(
			errors.New("max_stack_frames must not be negative"),
			"max_stack_frames", cfg.Formatter.MaxStackFrames,
		)
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

// Apply installs cfg as the default logger configuration.
func (cfg Config) Apply() error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	SetFormatterConfig(cfg.Formatter)
	SetLevel(level)
	return nil
}
