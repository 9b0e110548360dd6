// Package config loads tracker-wide settings from a YAML file. Connection
// settings for postgres and object storage stay in their platform packages;
// this file carries the knobs an operator tunes per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nimbus-geo/nimbus-go/internal/platform/env"
	"github.com/nimbus-geo/nimbus-go/internal/service/chainer"
	"github.com/nimbus-geo/nimbus-go/internal/service/processor"
)

const DefaultPath = "nimbus.yaml"

type Config struct {
	// PayloadBucket is the object storage bucket for payload bodies.
	PayloadBucket string       `yaml:"payload_bucket"`
	Submit        SubmitConfig `yaml:"submit"`
	Chain         ChainConfig  `yaml:"chain"`
	Query         QueryConfig  `yaml:"query"`
}

type SubmitConfig struct {
	Concurrency   int      `yaml:"concurrency"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

type ChainConfig struct {
	MaxItems int `yaml:"max_items"`
}

type QueryConfig struct {
	PageSize int `yaml:"page_size"`
}

// Duration decodes YAML scalars like "250ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func Default() Config {
	return Config{
		PayloadBucket: "nimbus-payloads",
		Submit: SubmitConfig{
			Concurrency:   8,
			RetryAttempts: 3,
			RetryBackoff:  Duration(100 * time.Millisecond),
		},
		Chain: ChainConfig{MaxItems: chainer.DefaultMaxItems},
		Query: QueryConfig{PageSize: 100},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(input []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the config file at path. An empty path falls back to the
// NIMBUS_CONFIG environment variable, then to DefaultPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = env.String("NIMBUS_CONFIG", DefaultPath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

func (c Config) Validate() error {
	if c.PayloadBucket == "" {
		return fmt.Errorf("payload_bucket is required")
	}
	if c.Submit.Concurrency <= 0 {
		return fmt.Errorf("submit.concurrency must be positive")
	}
	if c.Submit.RetryAttempts <= 0 {
		return fmt.Errorf("submit.retry_attempts must be positive")
	}
	if c.Submit.RetryBackoff <= 0 {
		return fmt.Errorf("submit.retry_backoff must be positive")
	}
	if c.Chain.MaxItems <= 0 {
		return fmt.Errorf("chain.max_items must be positive")
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("query.page_size must be positive")
	}
	return nil
}

// ProcessorOptions maps the submit section onto processor options.
func (c Config) ProcessorOptions() []processor.Option {
	return []processor.Option{
		processor.WithConcurrency(c.Submit.Concurrency),
		processor.WithRetry(c.Submit.RetryAttempts, time.Duration(c.Submit.RetryBackoff)),
	}
}

// Chainer builds the chaining service for the configured batch limit.
func (c Config) Chainer() *chainer.Service {
	return chainer.New(c.Chain.MaxItems)
}
