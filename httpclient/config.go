/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/acronis/go-apidispatch/config"
	"github.com/acronis/go-apidispatch/dispatcher"
)

const cfgDefaultKeyPrefix = "httpclient"

const (
	cfgKeyTimeout   = "timeout"
	cfgKeyUserAgent = "userAgent"
)

// DefaultTimeout is the default value of http.Client.Timeout.
// The timeout covers the time spent waiting for a dispatcher token, so it should exceed the refill interval.
const DefaultTimeout = 2 * time.Minute

// Config represents a set of configuration parameters for a dispatching HTTP client.
// Dispatcher settings (capacity, penaltyPeriod, refillInterval, pollInterval) are read from the same section.
type Config struct {
	Timeout    config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UserAgent  string              `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`
	Dispatcher dispatcher.Config   `mapstructure:",squash" yaml:",inline" json:"dispatcher"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config. An empty keyPrefix means "httpclient".
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(keyPrefix string) *Config {
	cfg := NewConfig(keyPrefix)
	cfg.Timeout = config.TimeDuration(DefaultTimeout)
	cfg.Dispatcher = *dispatcher.NewDefaultConfig()
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
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	c.Dispatcher.SetProviderDefaults(dp)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must not be negative, got %s", timeout))
	}
	c.Timeout = config.TimeDuration(timeout)

	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	return c.Dispatcher.Set(dp)
}
