/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "io"

// Loader fills Config objects from a DataProvider.
// For each config, defaults are registered first, then values are read with Set.
// Configs implementing KeyPrefixProvider see only their own section.
type Loader struct {
	DataProvider DataProvider
}

// NewLoader creates a Loader reading from dp.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// NewDefaultLoader creates a Loader over viper that also reads environment variables starting with envVarsPrefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// Load fills configs using defaults and environment variables only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(nil, cfg, cfgs)
}

// LoadFromFile reads path and fills configs.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromFile(path, dataType) }, cfg, cfgs)
}

// LoadFromReader reads reader and fills configs.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromReader(reader, dataType) }, cfg, cfgs)
}

func (l *Loader) load(readSource func() error, first Config, rest []Config) error {
	if readSource != nil {
		if err := readSource(); err != nil {
			return err
		}
	}
	all := append([]Config{first}, rest...)
	providers := make([]DataProvider, len(all))
	for i, cfg := range all {
		providers[i] = dataProviderFor(cfg, l.DataProvider)
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range all {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
