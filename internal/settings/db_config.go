package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// dbConfigSnapshot holds the in-memory DB config values.
type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalDBConfig stores the latest dbConfigSnapshot atomically.
var globalDBConfig atomic.Value // stores dbConfigSnapshot

// init seeds the global DB config snapshot.
func init() {
	globalDBConfig.Store(dbConfigSnapshot{values: map[string]json.RawMessage{}})
}

// StoreDBConfig replaces the in-memory snapshot of DB-backed settings.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if v == nil {
			next[key] = nil
			continue
		}
		copied := make([]byte, len(v))
		copy(copied, v)
		next[key] = copied
	}

	globalDBConfig.Store(dbConfigSnapshot{
		updatedAt: updatedAt.UTC(),
		values:    next,
	})
}

// DBConfigUpdatedAt returns the last update timestamp for DB config.
func DBConfigUpdatedAt() time.Time {
	return loadDBConfig().updatedAt
}

// DBConfigValue returns a copy of the raw config value for a key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	cfg := loadDBConfig()
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	val, ok := cfg.values[key]
	if !ok {
		return nil, false
	}
	if val == nil {
		return nil, true
	}
	copied := make([]byte, len(val))
	copy(copied, val)
	return copied, true
}

// loadDBConfig returns the current snapshot.
func loadDBConfig() dbConfigSnapshot {
	cfg, ok := globalDBConfig.Load().(dbConfigSnapshot)
	if !ok {
		return dbConfigSnapshot{values: map[string]json.RawMessage{}}
	}
	return cfg
}

// intValue decodes an integer setting with a fallback default.
func intValue(key string, fallback int) int {
	raw, ok := DBConfigValue(key)
	if !ok || len(raw) == 0 {
		return fallback
	}
	var parsed int
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// CardValidityDays returns the default validity window in days (0 = none).
func CardValidityDays() int {
	return intValue(DefaultValidityDaysKey, DefaultValidityDays)
}

// SettlementTimeout returns the bound for one settlement unit of work.
func SettlementTimeout() time.Duration {
	seconds := intValue(SettlementTimeoutSecondsKey, DefaultSettlementTimeoutSeconds)
	if seconds <= 0 {
		seconds = DefaultSettlementTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// ExpiryPollInterval returns the expiry scan interval.
func ExpiryPollInterval() time.Duration {
	seconds := intValue(ExpiryPollIntervalSecondsKey, DefaultExpiryPollIntervalSeconds)
	if seconds <= 0 {
		seconds = DefaultExpiryPollIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

// ExpiryPollBatchSize returns the per-scan expiry cap.
func ExpiryPollBatchSize() int {
	size := intValue(ExpiryPollBatchSizeKey, DefaultExpiryPollBatchSize)
	if size <= 0 {
		size = DefaultExpiryPollBatchSize
	}
	return size
}
