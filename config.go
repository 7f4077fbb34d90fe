package diskprov

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of the provisioning tool.
type Config struct {
	Tools        Tools  `yaml:"tools"`
	LogLevel     string `yaml:"log-level"`
	VerifyTable  bool   `yaml:"verify-table"`
	LoopCacheTTL string `yaml:"loop-cache-ttl"`
	Target       string `yaml:"target"`
	BootDir      string `yaml:"boot-dir"`
}

// DefaultConfig returns the built in configuration.
func DefaultConfig() Config {
	return Config{
		Tools:        DefaultTools(),
		LogLevel:     "info",
		LoopCacheTTL: "5s",
		Target:       "/mnt",
		BootDir:      "boot",
	}
}

// LoadConfig reads a YAML config file over the defaults. Keys that are not
// part of Config are an error.
func LoadConfig(fpath string) (Config, error) {
	cfg := DefaultConfig()

	content, err := os.ReadFile(fpath)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", fpath)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", fpath)
	}

	cfg.Tools = cfg.Tools.withDefaults()

	return cfg, cfg.Validate()
}

// Validate checks the values that are parsed lazily.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log-level")
	}

	if _, err := c.LoopTTL(); err != nil {
		return err
	}

	if c.Target == "" {
		return errors.New("target must not be empty")
	}

	return nil
}

// LoopTTL returns LoopCacheTTL as a duration. Empty means no caching.
func (c Config) LoopTTL() (time.Duration, error) {
	if c.LoopCacheTTL == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.LoopCacheTTL)
	if err != nil {
		return 0, errors.Wrap(err, "loop-cache-ttl")
	}

	return d, nil
}

// Level returns the configured log level, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return lvl
}
