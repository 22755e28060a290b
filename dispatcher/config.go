/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"fmt"
	"time"

	"github.com/acronis/go-apidispatch/config"
)

const cfgDefaultKeyPrefix = "dispatcher"

const (
	cfgKeyCapacity       = "capacity"
	cfgKeyPenaltyPeriod  = "penaltyPeriod"
	cfgKeyRefillInterval = "refillInterval"
	cfgKeyPollInterval   = "pollInterval"
)

// Default values.
const (
	DefaultCapacity       = 15
	DefaultPenaltyPeriod  = time.Duration(0)
	DefaultRefillInterval = time.Minute
	DefaultPollInterval   = time.Second
)

// Config represents a set of configuration parameters for Dispatcher.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Capacity is the number of tokens in a full bucket.
	Capacity int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`

	// PenaltyPeriod is the cool-down entered when the bucket is drained. Zero disables penalties.
	PenaltyPeriod config.TimeDuration `mapstructure:"penaltyPeriod" yaml:"penaltyPeriod" json:"penaltyPeriod"`

	// RefillInterval is the cadence at which the bucket is refilled to capacity.
	RefillInterval config.TimeDuration `mapstructure:"refillInterval" yaml:"refillInterval" json:"refillInterval"`

	// PollInterval is how often a waiting caller re-checks the bucket.
	PollInterval config.TimeDuration `mapstructure:"pollInterval" yaml:"pollInterval" json:"pollInterval"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// Several dispatchers may be described in one file, each under its own prefix.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Capacity = DefaultCapacity
	cfg.PenaltyPeriod = config.TimeDuration(DefaultPenaltyPeriod)
	cfg.RefillInterval = config.TimeDuration(DefaultRefillInterval)
	cfg.PollInterval = config.TimeDuration(DefaultPollInterval)
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyCapacity, DefaultCapacity)
	dp.SetDefault(cfgKeyPenaltyPeriod, DefaultPenaltyPeriod.String())
	dp.SetDefault(cfgKeyRefillInterval, DefaultRefillInterval.String())
	dp.SetDefault(cfgKeyPollInterval, DefaultPollInterval.String())
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Capacity, err = dp.GetInt(cfgKeyCapacity); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyPenaltyPeriod, &c.PenaltyPeriod},
		{cfgKeyRefillInterval, &c.RefillInterval},
		{cfgKeyPollInterval, &c.PollInterval},
	}
	for _, d := range durations {
		var v time.Duration
		if v, err = dp.GetDuration(d.key); err != nil {
			return err
		}
		*d.dst = config.TimeDuration(v)
	}

	if key, vErr := c.validate(); vErr != nil {
		return dp.WrapKeyErr(key, vErr)
	}
	return nil
}

// Validate checks that the configuration can be used to construct a Dispatcher.
func (c *Config) Validate() error {
	if key, err := c.validate(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (c *Config) validate() (key string, err error) {
	if c.Capacity <= 0 {
		return cfgKeyCapacity, fmt.Errorf("must be positive, got %d", c.Capacity)
	}
	if c.PenaltyPeriod < 0 {
		return cfgKeyPenaltyPeriod, fmt.Errorf("must not be negative, got %s", c.PenaltyPeriod)
	}
	if c.RefillInterval <= 0 {
		return cfgKeyRefillInterval, fmt.Errorf("must be positive, got %s", c.RefillInterval)
	}
	if c.PollInterval <= 0 {
		return cfgKeyPollInterval, fmt.Errorf("must be positive, got %s", c.PollInterval)
	}
	return "", nil
}
