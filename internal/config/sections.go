package config

import (
	"fmt"
	"os"

	"code.byted.org/khicago/nvstore/boltdb"
	"go.etcd.io/bbolt"
)

const (
	// LoggerLevelDefault is the default logger level.
	LoggerLevelDefault = "info"

	// PartitionDirDefault is where partition files live by default.
	PartitionDirDefault = "./nvs"

	// CacheSizeDefault is the default number of cached committed values.
	CacheSizeDefault = 256
)

// LoggerLevel returns the value of "level" config parameter
// from "logger" section.
//
// Returns LoggerLevelDefault if the value is not a non-empty string.
func LoggerLevel(c *Config) string {
	if v := StringSafe(c.Sub("logger"), "level"); v != "" {
		return v
	}
	return LoggerLevelDefault
}

// DefaultLabel returns the value of "label" config parameter from
// "partition" section: the partition used when a command names none.
func DefaultLabel(c *Config) string {
	return StringSafe(c.Sub("partition"), "label")
}

// MetricsEnabled returns the value of "enabled" config parameter from
// "metrics" section.
func MetricsEnabled(c *Config) bool {
	return BoolSafe(c.Sub("metrics"), "enabled")
}

// BoltOptions builds driver options from the "partition" section.
func BoltOptions(c *Config) (boltdb.Options, error) {
	sub := c.Sub("partition")

	opts := boltdb.Options{
		Options: bbolt.Options{
			Timeout:      bbolt.DefaultOptions.Timeout,
			FreelistType: bbolt.DefaultOptions.FreelistType,

			NoSync:     BoolSafe(sub, "no_sync"),
			NoGrowSync: BoolSafe(sub, "no_grow_sync"),
			ReadOnly:   BoolSafe(sub, "read_only"),
		},
		Dir:       StringSafe(sub, "dir"),
		CacheSize: CacheSizeDefault,
	}
	if opts.Dir == "" {
		opts.Dir = PartitionDirDefault
	}

	if sub.Value("lock_timeout") != nil {
		t, err := Duration(sub, "lock_timeout")
		if err != nil {
			return opts, fmt.Errorf("invalid partition.lock_timeout: %w", err)
		}
		if t > 0 {
			opts.Timeout = t
		}
	}

	if sub.Value("perm") != nil {
		perm, err := Uint32(sub, "perm")
		if err != nil {
			return opts, fmt.Errorf("invalid partition.perm: %w", err)
		}
		opts.Perm = os.FileMode(perm)
	}

	if sub.Value("max_size") != nil {
		size, err := Int(sub, "max_size")
		if err != nil {
			return opts, fmt.Errorf("invalid partition.max_size: %w", err)
		}
		opts.MaxSize = size
	}

	if sub.Value("cache_size") != nil {
		size, err := Int(sub, "cache_size")
		if err != nil {
			return opts, fmt.Errorf("invalid partition.cache_size: %w", err)
		}
		opts.CacheSize = int(size)
	}

	return opts, nil
}
