// Package config reads nvsctl settings from a file and NVS_* environment
// variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of environment overrides: partition.dir is
	// read from NVS_PARTITION_DIR.
	EnvPrefix = "NVS"

	separator    = "."
	envSeparator = "_"
)

// Config represents a group of named values structured by sections.
type Config struct {
	v    *viper.Viper
	path []string
}

// New reads the configuration file at path. An empty path yields a config
// holding only defaults and environment overrides.
func New(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(separator, envSeparator))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// Sub returns the sub-section of c named name.
func (c *Config) Sub(name string) *Config {
	path := make([]string, len(c.path), len(c.path)+1)
	copy(path, c.path)

	return &Config{
		v:    c.v,
		path: append(path, name),
	}
}

// Value returns the value of the named parameter of the section, or nil.
func (c *Config) Value(name string) any {
	return c.v.Get(strings.Join(append(c.path, name), separator))
}

// Set overrides a parameter of the section, flags use it to win over files.
func (c *Config) Set(name string, value any) {
	c.v.Set(strings.Join(append(c.path, name), separator), value)
}
