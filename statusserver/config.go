/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package statusserver

import (
	"errors"
	"time"

	"github.com/acronis/go-apidispatch/config"
)

const cfgDefaultKeyPrefix = "statusServer"

const (
	cfgKeyEnabled         = "enabled"
	cfgKeyAddress         = "address"
	cfgKeyProfiling       = "profiling"
	cfgKeyShutdownTimeout = "shutdownTimeout"
)

// Default values.
const (
	DefaultAddress         = "127.0.0.1:8081"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config represents a set of configuration parameters for the status server.
type Config struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address         string              `mapstructure:"address" yaml:"address" json:"address"`
	Profiling       bool                `mapstructure:"profiling" yaml:"profiling" json:"profiling"`
	ShutdownTimeout config.TimeDuration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout" json:"shutdownTimeout"`

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
	cfg.Enabled = true
	cfg.Address = DefaultAddress
	cfg.ShutdownTimeout = config.TimeDuration(DefaultShutdownTimeout)
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyShutdownTimeout, DefaultShutdownTimeout.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty"))
	}
	if c.Profiling, err = dp.GetBool(cfgKeyProfiling); err != nil {
		return err
	}
	var timeout time.Duration
	if timeout, err = dp.GetDuration(cfgKeyShutdownTimeout); err != nil {
		return err
	}
	c.ShutdownTimeout = config.TimeDuration(timeout)
	return nil
}
