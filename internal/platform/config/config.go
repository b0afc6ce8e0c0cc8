// Package config reads settings from the environment through prefixed views,
// e.g. New().Prefix("CORE_BACKFILL_").MayInt("DURATION", 7) reads CORE_BACKFILL_DURATION
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"dayfill/internal/platform/logger"
)

// DateLayout is the calendar date format MayDate accepts
const DateLayout = time.DateOnly

// Conf is a prefixed view over environment variables. The zero value reads unprefixed keys
type Conf struct{ prefix string }

// New returns the root view
func New() Conf { return Conf{} }

// Prefix returns a child view, e.g. root.Prefix("SERVICE_CLICKHOUSE_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) get(key string) string { return strings.TrimSpace(os.Getenv(c.key(key))) }

// Has reports whether key is set to something other than blanks
func (c Conf) Has(key string) bool { return c.get(key) != "" }

// MustString returns key or panics when it is unset; meant for startup
func (c Conf) MustString(key string) string {
	v := c.get(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// MayString returns key or def when unset
func (c Conf) MayString(key, def string) string {
	if v := c.get(key); v != "" {
		return v
	}
	return def
}

// MayInt returns key as an int; unset or unparsable values fall back to def
func (c Conf) MayInt(key string, def int) int { return may(c, key, def, strconv.Atoi) }

// MayBool returns key as a bool (strconv.ParseBool forms); otherwise def
func (c Conf) MayBool(key string, def bool) bool { return may(c, key, def, strconv.ParseBool) }

// MayDuration returns key as a time.Duration such as "90s"; otherwise def
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return may(c, key, def, time.ParseDuration)
}

// MayDate returns key as a YYYY-MM-DD date at UTC midnight; otherwise def
func (c Conf) MayDate(key string, def time.Time) time.Time {
	return may(c, key, def, func(s string) (time.Time, error) { return time.Parse(DateLayout, s) })
}

// may parses key, warning once per bad value before falling back to def
func may[T any](c Conf, key string, def T, parse func(string) (T, error)) T {
	s := c.get(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().Err(err).Str("key", c.key(key)).Str("value", s).Interface("default", def).Msg("invalid config value; using default")
		return def
	}
	return v
}
