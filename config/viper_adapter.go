/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by github.com/spf13/viper.
// Typed getters convert values with github.com/spf13/cast.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a ViperAdapter with a fresh viper instance.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes environment variables override values: with the "apicaller" prefix,
// APICALLER_DISPATCHER_CAPACITY overrides "dispatcher.capacity".
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

// SetFromFile implements DataProvider.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigFile(path)
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadInConfig()
}

// SetFromReader implements DataProvider.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// Set overrides the value of key.
func (va *ViperAdapter) Set(key string, value interface{}) { va.viper.Set(key, value) }

// SetDefault sets the value used when key is neither in the data nor in the environment.
func (va *ViperAdapter) SetDefault(key string, value interface{}) { va.viper.SetDefault(key, value) }

// IsSet implements ValueGetter. Keys are case-insensitive.
func (va *ViperAdapter) IsSet(key string) bool { return va.viper.IsSet(key) }

// Get implements ValueGetter.
func (va *ViperAdapter) Get(key string) interface{} { return va.viper.Get(key) }

func castValue[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	v, err := castFn(va.Get(key))
	return v, WrapKeyErr(key, err)
}

// GetBool implements ValueGetter.
func (va *ViperAdapter) GetBool(key string) (bool, error) { return castValue(va, key, cast.ToBoolE) }

// GetInt implements ValueGetter.
func (va *ViperAdapter) GetInt(key string) (int, error) { return castValue(va, key, cast.ToIntE) }

// GetString implements ValueGetter.
func (va *ViperAdapter) GetString(key string) (string, error) { return castValue(va, key, cast.ToStringE) }

// GetStringFromSet implements ValueGetter.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration implements ValueGetter. Integers are nanoseconds, strings are parsed with time.ParseDuration.
// A missing key gives zero.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	switch v := va.Get(key).(type) {
	case nil:
		return 0, nil
	case TimeDuration:
		return time.Duration(v), nil
	case time.Duration:
		return v, nil
	}
	return castValue(va, key, cast.ToDurationE)
}

// GetByteSize implements ValueGetter. Strings may use units ("100M", "1Gi"). A missing key gives zero.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	val := va.Get(key)
	switch v := val.(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case string:
		bs, err := parseByteSize(v)
		return bs, WrapKeyErr(key, err)
	case float32, float64:
		return ByteSize(uint64(cast.ToFloat64(v))), nil
	}
	num, err := cast.ToInt64E(val)
	if err != nil {
		return 0, WrapKeyErr(key, err)
	}
	if num < 0 {
		return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
	}
	return ByteSize(num), nil
}

// Unmarshal decodes all values into rawVal with mapstructure.
func (va *ViperAdapter) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return va.viper.Unmarshal(rawVal, viperDecoderOptions(opts)...)
}

// UnmarshalKey decodes the value of key into rawVal with mapstructure.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return WrapKeyErr(key, va.viper.UnmarshalKey(key, rawVal, viperDecoderOptions(opts)...))
}

// WrapKeyErr implements DataProvider.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func viperDecoderOptions(opts []DecoderConfigOption) []viper.DecoderConfigOption {
	res := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		res = append(res, viper.DecoderConfigOption(opt))
	}
	return res
}
