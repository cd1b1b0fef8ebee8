package config

import (
	"time"

	"github.com/spf13/cast"
)

// String reads the named value and casts it to string.
func String(c *Config, name string) (string, error) {
	return cast.ToStringE(c.Value(name))
}

// StringSafe reads the named value and casts it to string.
//
// Returns "" if value can not be casted.
func StringSafe(c *Config, name string) string {
	return cast.ToString(c.Value(name))
}

// Duration reads the named value and casts it to time.Duration.
func Duration(c *Config, name string) (time.Duration, error) {
	return cast.ToDurationE(c.Value(name))
}

// BoolSafe reads the named value and casts it to bool.
//
// Returns false if value can not be casted.
func BoolSafe(c *Config, name string) bool {
	return cast.ToBool(c.Value(name))
}

// Int reads the named value and casts it to int64.
func Int(c *Config, name string) (int64, error) {
	return cast.ToInt64E(c.Value(name))
}

// Uint32 reads the named value and casts it to uint32.
func Uint32(c *Config, name string) (uint32, error) {
	return cast.ToUint32E(c.Value(name))
}
