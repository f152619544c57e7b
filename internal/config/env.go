package config

import (
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets usually live here rather than in the config file.
const (
	EnvTelegramToken = "REMINDBOT_TELEGRAM_TOKEN"
	EnvStorageDriver = "REMINDBOT_STORAGE_DRIVER"
	EnvStorageDSN    = "REMINDBOT_STORAGE_DSN"
	EnvRedisAddr     = "REMINDBOT_REDIS_ADDR"
	EnvRedisPassword = "REMINDBOT_REDIS_PASSWORD"
	EnvTimezone      = "REMINDBOT_TIMEZONE"
	EnvLogLevel      = "REMINDBOT_LOG_LEVEL"
	EnvHTTPAddr      = "REMINDBOT_HTTP_ADDR"
	EnvMaxPerUser    = "REMINDBOT_MAX_PER_USER"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none) into the
// process environment. Variables already set win, and missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := godotenv.Read(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvStorageDriver); ok {
		cfg.Storage.Driver = v
	}
	if v, ok := get(EnvStorageDSN); ok {
		cfg.Storage.DSN = v
	}
	if v, ok := get(EnvRedisAddr); ok {
		cfg.Storage.Addr = v
	}
	if v, ok := get(EnvRedisPassword); ok {
		cfg.Storage.Password = v
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Reminders.Timezone = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvHTTPAddr); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := get(EnvMaxPerUser); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reminders.MaxPerUser = n
		}
	}
}
