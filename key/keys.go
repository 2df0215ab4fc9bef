// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Asset Cache - these keys bound the in-memory tier and toggle disk persistence.
const (
	CacheMemoryMaxBytes   = "cache.memory_max_bytes"
	CacheMemoryMaxEntries = "cache.memory_max_entries"
	CacheDiskEnable       = "cache.disk_enable"
	CacheDiskTTLDays      = "cache.disk_ttl_days"
)

// Network Path Observation - these keys configure connectivity probing and quality classification.
const (
	NetworkProbeURL         = "network.probe_url"
	NetworkProbeInterval    = "network.probe_interval"
	NetworkConstrainedRTTMs = "network.constrained_rtt_ms"
	NetworkTLSFingerprint   = "network.tls_fingerprint"
)

// Fetch Coordination - these keys tune request timeouts and low-priority admission.
const (
	FetchTimeout        = "fetch.timeout"
	FetchLowConcurrency = "fetch.low_concurrency"
)

// Playback - these keys govern session retry, progress ticks and quality upgrades.
const (
	PlaybackRetryDelay     = "playback.retry_delay"
	PlaybackTickInterval   = "playback.tick_interval"
	PlaybackUpgradeDwell   = "playback.upgrade_dwell"
	PlaybackUpgradeEnabled = "playback.upgrade_enabled"
)

// Prefetch - these keys shape the speculative window scheduler.
const (
	PrefetchPageSize   = "prefetch.page_size"
	PrefetchThreshold  = "prefetch.threshold"
	PrefetchMediaAhead = "prefetch.media_ahead"
	PrefetchRatePerSec = "prefetch.rate_per_sec"
)

// History Tracking - these keys configure the persistence of watch progress.
const (
	HistorySaveProgress = "history.save_progress"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the command-line application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
	IconsVariant    = "icons.variant"
)

// Metrics - these keys toggle prometheus instrumentation.
const (
	MetricsEnable = "metrics.enable"
)
