package config

const (
	DefaultThreadCount       = uint8(8)
	DefaultT0Ms              = uint64(16000)
	DefaultFinalityThreshold = uint64(64)

	DefaultMaxActiveBlocks      = 2048
	DefaultPendingDeadlineMs    = 30000
	DefaultMissingGracePeriodMs = 2000
	DefaultFutureSlotTolerance  = uint64(2)

	DefaultRejectionCacheSize  = 8192
	DefaultRejectionCacheTTLMs = 600000

	DefaultIntakeQueueSize     = 1024
	DefaultNotificationBacklog = 256
	DefaultTickIntervalMs      = 500
)
