/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes written either as an integer or with a unit ("250M", "1Gi").
type ByteSize uint64

// UnmarshalText implements encoding.TextUnmarshaler. It is also what the mapstructure text hook calls.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := parseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalJSON accepts both a number and a string.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText(unquote(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.UnmarshalText([]byte(value.Value))
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON writes the size with a unit.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML writes the size with a unit.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// k8sSuffixes are power-of-two suffixes; bytefmt already treats "M" as 2^20, so only the "i" is dropped.
var k8sSuffixes = [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"}

func parseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", n)
		}
		return ByteSize(n), nil
	}
	for _, suffix := range k8sSuffixes {
		if strings.HasSuffix(v, suffix) {
			v = strings.TrimSuffix(v, "i")
			break
		}
	}
	n, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(n), nil
}

// TimeDuration is a duration written either as integer nanoseconds or as a Go duration string ("1m", "500ms").
// Negative values are rejected.
type TimeDuration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler. It is also what the mapstructure text hook calls.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	v, err := parseTimeDuration(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalJSON accepts both a number and a string.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.UnmarshalText(unquote(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a Go duration string.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML writes the duration as a Go duration string.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func parseTimeDuration(s string) (TimeDuration, error) {
	v := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", n)
		}
		return TimeDuration(n), nil
	}
	dur, err := time.ParseDuration(v)
	switch {
	case err != nil:
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	case dur < 0:
		return 0, fmt.Errorf("negative value is not allowed: %s", s)
	}
	return TimeDuration(dur), nil
}

func unquote(data []byte) []byte {
	return []byte(strings.Trim(string(data), `"`))
}
