/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"github.com/acronis/go-apidispatch/config"
)

// Level is a minimal severity of logged entries.
type Level string

// Levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an encoding of log entries.
type Format string

// Formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is a destination of log entries.
type Output string

// Outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

// Default and minimal values.
const (
	DefaultFileRotationMaxSizeBytes = 250 * MinFileRotationMaxSizeBytes
	MinFileRotationMaxSizeBytes     = 1 << 20

	DefaultFileRotationMaxBackups = 10
	MinFileRotationMaxBackups     = 1

	defaultErrorVerboseSuffix = "_verbose"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel     = "level"
	cfgKeyFormat    = "format"
	cfgKeyOutput    = "output"
	cfgKeyNoColor   = "nocolor"
	cfgKeyAddCaller = "addCaller"

	cfgKeyFilePath                     = "file.path"
	cfgKeyFileRotationCompress         = "file.rotation.compress"
	cfgKeyFileRotationMaxSize          = "file.rotation.maxSize"
	cfgKeyFileRotationMaxBackups       = "file.rotation.maxBackups"
	cfgKeyFileRotationMaxAgeDays       = "file.rotation.maxAgeDays"
	cfgKeyFileRotationLocalTimeInNames = "file.rotation.localTimeInNames"

	cfgKeyErrorNoVerbose     = "error.noVerbose"
	cfgKeyErrorVerboseSuffix = "error.verboseSuffix"
)

// Config is a logging configuration.
// It may be loaded with config.Loader or unmarshalled from YAML/JSON directly.
type Config struct {
	Level     Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format    Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output    Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor   bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	AddCaller bool             `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"` // package/file:line of the call site
	File      FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`
	Error     ErrorConfig      `mapstructure:"error" yaml:"error" json:"error"`

	keyPrefix string
}

// FileOutputConfig is used when Output is "file". Path may contain {{starttime}} and {{pid}} placeholders.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig controls rotation of the log file.
type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig controls how error fields are encoded.
// Unless NoVerbose is set, an error whose "%+v" form differs from Error() gets an extra field with VerboseSuffix.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig and NewDefaultConfig.
type ConfigOption func(*Config)

// WithKeyPrefix sets the key prefix used by config.Loader ("log" by default).
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewDefaultConfig creates a Config logging JSON to stdout at "info" level.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Level = LevelInfo
	cfg.Format = FormatJSON
	cfg.Output = OutputStdout
	cfg.File.Rotation.MaxSize = DefaultFileRotationMaxSizeBytes
	cfg.File.Rotation.MaxBackups = DefaultFileRotationMaxBackups
	cfg.Error.VerboseSuffix = defaultErrorVerboseSuffix
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
	defaults := NewDefaultConfig()
	dp.SetDefault(cfgKeyLevel, string(defaults.Level))
	dp.SetDefault(cfgKeyFormat, string(defaults.Format))
	dp.SetDefault(cfgKeyOutput, string(defaults.Output))
	dp.SetDefault(cfgKeyFileRotationMaxSize, defaults.File.Rotation.MaxSize.String())
	dp.SetDefault(cfgKeyFileRotationMaxBackups, defaults.File.Rotation.MaxBackups)
	dp.SetDefault(cfgKeyErrorVerboseSuffix, defaults.Error.VerboseSuffix)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	enums := []struct {
		key    string
		values []string
		set    func(string)
	}{
		{cfgKeyLevel, []string{"error", "warn", "info", "debug"}, func(v string) { c.Level = Level(v) }},
		{cfgKeyFormat, []string{"json", "text"}, func(v string) { c.Format = Format(v) }},
		{cfgKeyOutput, []string{"stdout", "stderr", "file"}, func(v string) { c.Output = Output(v) }},
	}
	for _, e := range enums {
		v, err := dp.GetStringFromSet(e.key, e.values, true)
		if err != nil {
			return err
		}
		e.set(strings.ToLower(v))
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{cfgKeyNoColor, &c.NoColor},
		{cfgKeyAddCaller, &c.AddCaller},
		{cfgKeyErrorNoVerbose, &c.Error.NoVerbose},
	}
	for _, f := range flags {
		v, err := dp.GetBool(f.key)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var err error
	if c.Error.VerboseSuffix, err = dp.GetString(cfgKeyErrorVerboseSuffix); err != nil {
		return err
	}
	return c.setFile(dp)
}

func (c *Config) setFile(dp config.DataProvider) (err error) {
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	r := &c.File.Rotation
	if r.Compress, err = dp.GetBool(cfgKeyFileRotationCompress); err != nil {
		return err
	}
	if r.LocalTimeInNames, err = dp.GetBool(cfgKeyFileRotationLocalTimeInNames); err != nil {
		return err
	}
	if r.MaxSize, err = dp.GetByteSize(cfgKeyFileRotationMaxSize); err != nil {
		return err
	}
	if r.MaxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxSize,
			fmt.Errorf("should be >= %s", config.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	if r.MaxBackups, err = dp.GetInt(cfgKeyFileRotationMaxBackups); err != nil {
		return err
	}
	if r.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxBackups, fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}
	if r.MaxAgeDays, err = dp.GetInt(cfgKeyFileRotationMaxAgeDays); err != nil {
		return err
	}
	if r.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyFileRotationMaxAgeDays, fmt.Errorf("should be >= 0"))
	}
	return nil
}
