package config

// StakerEntry seeds the selection oracle from genesis.yml
type StakerEntry struct {
	PubKey string `yaml:"pubkey"`
	Weight uint64 `yaml:"weight"`
}

// GenesisConfig holds the chain-defining parameters from genesis.yml
type GenesisConfig struct {
	ThreadCount        uint8         `yaml:"thread_count"`
	T0Ms               uint64        `yaml:"t0_ms"`
	GenesisTimestampMs int64         `yaml:"genesis_timestamp_ms"`
	GenesisKeyPaths    []string      `yaml:"genesis_key_paths"`
	Stakers            []StakerEntry `yaml:"stakers"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

// ConsensusConfig is the full tuning surface of the graph engine. Genesis
// fields come from YAML, the rest from consensus.ini with defaults applied.
type ConsensusConfig struct {
	ThreadCount        uint8
	T0Ms               uint64
	GenesisTimestampMs int64

	// Fitness gap a clique must fall behind the blockclique before blocks
	// it conflicts with can be declared final.
	FinalityThreshold uint64
	// Upper bound on non-final active blocks before pruning kicks in.
	MaxActiveBlocks int
	// How long a block may wait for missing parents.
	PendingDeadlineMs int
	// Grace period before missing parents are re-requested from peers.
	MissingGracePeriodMs int
	// How many periods ahead of the wall clock a slot may be.
	FutureSlotTolerance uint64

	RejectionCacheSize  int
	RejectionCacheTTLMs int

	IntakeQueueSize     int
	NotificationBacklog int
	TickIntervalMs      int
}
