// Package env consolidates all environment variable reading for the application.
// Config overrides are applied only at startup (see config.Load).
package env

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names (single source of truth)
const (
	LOGLevel        = "H3R_LOG_LEVEL"
	LOGFile         = "H3R_LOG_FILE"
	DataDir         = "H3R_DATA_DIR"
	GameDir         = "H3R_GAME_DIR"
	Archives        = "H3R_ARCHIVES"
	IORetries       = "H3R_IO_RETRIES"
	IORetryDelayMs  = "H3R_IO_RETRY_DELAY_MS"
	NameCharset     = "H3R_NAME_CHARSET"
	LookupCacheSize = "H3R_LOOKUP_CACHE"
)

// Config file keys returned by OverrideKeys
const (
	KeyLogLevel        = "log_level"
	KeyLogFile         = "log_file"
	KeyGameDir         = "game_dir"
	KeyArchives        = "archives"
	KeyIORetries       = "io_retries"
	KeyIORetryDelayMs  = "io_retry_delay_ms"
	KeyNameCharset     = "name_charset"
	KeyLookupCacheSize = "lookup_cache_size"
)

// LogLevel returns H3R_LOG_LEVEL with default "INFO" (for early logger init before config).
func LogLevel() string {
	return getEnv(LOGLevel, "INFO")
}

// DataDirOverride returns H3R_DATA_DIR, or "" when unset.
func DataDirOverride() string {
	return os.Getenv(DataDir)
}

// ConfigOverrides holds all config values that can be set via environment variables.
type ConfigOverrides struct {
	LogLevel        string
	LogFile         bool
	GameDir         string
	Archives        []string
	IORetries       int
	IORetryDelayMs  int
	NameCharset     string
	LookupCacheSize int
}

// ReadConfigOverrides reads all relevant environment variables once and returns
// overrides to apply to config plus the list of config keys that were set.
func ReadConfigOverrides() (ConfigOverrides, []string) {
	var o ConfigOverrides
	var keys []string

	if v := os.Getenv(LOGLevel); v != "" {
		o.LogLevel = v
		keys = append(keys, KeyLogLevel)
	}
	if os.Getenv(LOGFile) != "" {
		o.LogFile = getEnvBool(LOGFile, false)
		keys = append(keys, KeyLogFile)
	}
	if v := os.Getenv(GameDir); v != "" {
		o.GameDir = v
		keys = append(keys, KeyGameDir)
	}
	if v := os.Getenv(Archives); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				o.Archives = append(o.Archives, p)
			}
		}
		keys = append(keys, KeyArchives)
	}
	if n, ok := intVar(IORetries); ok {
		o.IORetries = n
		keys = append(keys, KeyIORetries)
	}
	if n, ok := intVar(IORetryDelayMs); ok {
		o.IORetryDelayMs = n
		keys = append(keys, KeyIORetryDelayMs)
	}
	if v := os.Getenv(NameCharset); v != "" {
		o.NameCharset = v
		keys = append(keys, KeyNameCharset)
	}
	if n, ok := intVar(LookupCacheSize); ok {
		o.LookupCacheSize = n
		keys = append(keys, KeyLookupCacheSize)
	}

	return o, keys
}

// OverrideKeys returns the config keys that have environment overrides set.
func OverrideKeys() []string {
	_, keys := ReadConfigOverrides()
	return keys
}

// intVar reports whether key holds a valid integer.
func intVar(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true" || v == "1"
	}
	return defaultVal
}
