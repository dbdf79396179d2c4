package settings

// DB config keys and defaults for settings.
const (
	// DefaultValidityDaysKey controls the validity window stamped at first activation.
	DefaultValidityDaysKey = "DEFAULT_VALIDITY_DAYS"
	// SettlementTimeoutSecondsKey bounds a single settlement unit of work.
	SettlementTimeoutSecondsKey = "SETTLEMENT_TIMEOUT_SECONDS"
	// ExpiryPollIntervalSecondsKey controls the expiry scan interval.
	ExpiryPollIntervalSecondsKey = "EXPIRY_POLL_INTERVAL_SECONDS"
	// ExpiryPollBatchSizeKey caps cards expired per scan.
	ExpiryPollBatchSizeKey = "EXPIRY_POLL_BATCH_SIZE"

	// DefaultValidityDays is the fallback validity window (0 = no expiry).
	DefaultValidityDays = 0
	// DefaultSettlementTimeoutSeconds is the fallback settlement timeout.
	DefaultSettlementTimeoutSeconds = 10
	// DefaultExpiryPollIntervalSeconds is the fallback expiry scan interval.
	DefaultExpiryPollIntervalSeconds = 300
	// DefaultExpiryPollBatchSize is the fallback per-scan expiry cap.
	DefaultExpiryPollBatchSize = 200
)
