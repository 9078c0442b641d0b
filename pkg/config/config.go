// Package config holds the recovery-relevant environment options. Every
// field has a sane default; FromEnv overrides defaults
// with whatever the named environment variables actually set.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is passed by value into every recovery component that needs one
// of these knobs.
type Config struct {
	// FailoverGracePeriod is Hypertable.Failover.GracePeriod: how long a
	// recover-server operation waits, on first execution, for the failed
	// server to reconnect before committing to recovery.
	FailoverGracePeriod time.Duration

	// ConnectionRetryInterval is Hypertable.Connection.Retry.Interval: the
	// lock-retry back-off base interval.
	ConnectionRetryInterval time.Duration

	// RequestTimeout is Hypertable.Request.Timeout: the default RPC
	// deadline for outbound recovery RPCs.
	RequestTimeout time.Duration

	// FlushLimitAggregate is Hypertable.RangeServer.Failover.FlushLimit.Aggregate:
	// the player-side cross-range flush threshold, in bytes.
	FlushLimitAggregate int64

	// FlushLimitPerRange is Hypertable.RangeServer.Failover.FlushLimit.PerRange:
	// the per-range flush threshold, in bytes.
	FlushLimitPerRange int64

	// ReplayTimeout is Hypertable.RangeServer.Failover.ReplayTimeout: the
	// end-to-end replay deadline.
	ReplayTimeout time.Duration

	// LockMaxAttempts bounds the coordination-service lock-retry loop.
	LockMaxAttempts int
}

// Default returns the stock configuration: a generous
// grace period, a one-second lock retry, a ten-second RPC timeout, 64MiB/8MiB
// flush thresholds, a five-minute replay deadline, and ten lock attempts.
func Default() Config {
	return Config{
		FailoverGracePeriod:     30 * time.Second,
		ConnectionRetryInterval: time.Second,
		RequestTimeout:          10 * time.Second,
		FlushLimitAggregate:     64 << 20,
		FlushLimitPerRange:      8 << 20,
		ReplayTimeout:           5 * time.Minute,
		LockMaxAttempts:         10,
	}
}

// FromEnv starts from Default and overrides each field whose environment
// variable is set.
func FromEnv() Config {
	cfg := Default()

	if v, ok := durationFromEnv("HYPERTABLE_FAILOVER_GRACEPERIOD_MS"); ok {
		cfg.FailoverGracePeriod = v
	}
	if v, ok := durationFromEnv("HYPERTABLE_CONNECTION_RETRY_INTERVAL_MS"); ok {
		cfg.ConnectionRetryInterval = v
	}
	if v, ok := durationFromEnv("HYPERTABLE_REQUEST_TIMEOUT_MS"); ok {
		cfg.RequestTimeout = v
	}
	if v, ok := int64FromEnv("HYPERTABLE_RANGESERVER_FAILOVER_FLUSHLIMIT_AGGREGATE"); ok {
		cfg.FlushLimitAggregate = v
	}
	if v, ok := int64FromEnv("HYPERTABLE_RANGESERVER_FAILOVER_FLUSHLIMIT_PERRANGE"); ok {
		cfg.FlushLimitPerRange = v
	}
	if v, ok := durationFromEnv("HYPERTABLE_RANGESERVER_FAILOVER_REPLAYTIMEOUT_MS"); ok {
		cfg.ReplayTimeout = v
	}
	if v, ok := intFromEnv("HYPERTABLE_LOCK_MAX_ATTEMPTS"); ok {
		cfg.LockMaxAttempts = v
	}

	return cfg
}

func durationFromEnv(name string) (time.Duration, bool) {
	ms, ok := int64FromEnv(name)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func int64FromEnv(name string) (int64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func intFromEnv(name string) (int, bool) {
	v, ok := int64FromEnv(name)
	return int(v), ok
}
