package types

// ------------------------
// Service configs & liveness
// ------------------------

// HeartbeatConfig arrives retained on "config/heartbeat".
type HeartbeatConfig struct {
	IntervalMs uint32 `json:"interval_ms"`
}

// Heartbeat is published retained on "heartbeat".
type Heartbeat struct {
	UptimeMs int64 `json:"uptime_ms"`
	TSms     int64 `json:"ts_ms"`
}
