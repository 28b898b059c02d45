package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"weave/logx"
)

var ErrBadConfig = errors.New("invalid consensus config")

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open genesis config: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode genesis YAML: ", err)
		return nil, err
	}
	return &cfgFile.Config, nil
}

type tuning struct {
	FinalityThreshold    uint64 `ini:"finality_threshold"`
	MaxActiveBlocks      int    `ini:"max_active_blocks"`
	PendingDeadlineMs    int    `ini:"pending_deadline_ms"`
	MissingGracePeriodMs int    `ini:"missing_grace_period_ms"`
	FutureSlotTolerance  uint64 `ini:"future_slot_tolerance"`
	RejectionCacheSize   int    `ini:"rejection_cache_size"`
	RejectionCacheTTLMs  int    `ini:"rejection_cache_ttl_ms"`
	IntakeQueueSize      int    `ini:"intake_queue_size"`
	NotificationBacklog  int    `ini:"notification_backlog"`
	TickIntervalMs       int    `ini:"tick_interval_ms"`
}

// LoadConsensusConfig combines genesis.yml with the optional consensus.ini
// tuning file. Missing tuning values fall back to defaults.
func LoadConsensusConfig(genesisPath, tuningPath string) (*ConsensusConfig, error) {
	gen, err := LoadGenesisConfig(genesisPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConsensusConfig()
	cfg.ThreadCount = gen.ThreadCount
	cfg.T0Ms = gen.T0Ms
	cfg.GenesisTimestampMs = gen.GenesisTimestampMs

	if tuningPath != "" {
		iniFile, err := ini.Load(tuningPath)
		if err != nil {
			return nil, err
		}
		t := tuning{
			FinalityThreshold:    cfg.FinalityThreshold,
			MaxActiveBlocks:      cfg.MaxActiveBlocks,
			PendingDeadlineMs:    cfg.PendingDeadlineMs,
			MissingGracePeriodMs: cfg.MissingGracePeriodMs,
			FutureSlotTolerance:  cfg.FutureSlotTolerance,
			RejectionCacheSize:   cfg.RejectionCacheSize,
			RejectionCacheTTLMs:  cfg.RejectionCacheTTLMs,
			IntakeQueueSize:      cfg.IntakeQueueSize,
			NotificationBacklog:  cfg.NotificationBacklog,
			TickIntervalMs:       cfg.TickIntervalMs,
		}
		if err := iniFile.Section("consensus").MapTo(&t); err != nil {
			return nil, err
		}
		cfg.FinalityThreshold = t.FinalityThreshold
		cfg.MaxActiveBlocks = t.MaxActiveBlocks
		cfg.PendingDeadlineMs = t.PendingDeadlineMs
		cfg.MissingGracePeriodMs = t.MissingGracePeriodMs
		cfg.FutureSlotTolerance = t.FutureSlotTolerance
		cfg.RejectionCacheSize = t.RejectionCacheSize
		cfg.RejectionCacheTTLMs = t.RejectionCacheTTLMs
		cfg.IntakeQueueSize = t.IntakeQueueSize
		cfg.NotificationBacklog = t.NotificationBacklog
		cfg.TickIntervalMs = t.TickIntervalMs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConsensusConfig returns a config with every tunable at its default.
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ThreadCount:          DefaultThreadCount,
		T0Ms:                 DefaultT0Ms,
		FinalityThreshold:    DefaultFinalityThreshold,
		MaxActiveBlocks:      DefaultMaxActiveBlocks,
		PendingDeadlineMs:    DefaultPendingDeadlineMs,
		MissingGracePeriodMs: DefaultMissingGracePeriodMs,
		FutureSlotTolerance:  DefaultFutureSlotTolerance,
		RejectionCacheSize:   DefaultRejectionCacheSize,
		RejectionCacheTTLMs:  DefaultRejectionCacheTTLMs,
		IntakeQueueSize:      DefaultIntakeQueueSize,
		NotificationBacklog:  DefaultNotificationBacklog,
		TickIntervalMs:       DefaultTickIntervalMs,
	}
}

func (cfg *ConsensusConfig) Validate() error {
	if cfg.ThreadCount == 0 {
		return logx.Errorf("%w: thread_count must be >= 1", ErrBadConfig)
	}
	if cfg.T0Ms == 0 || cfg.T0Ms%uint64(cfg.ThreadCount) != 0 {
		return logx.Errorf("%w: t0_ms must be a positive multiple of thread_count", ErrBadConfig)
	}
	if cfg.MaxActiveBlocks < int(cfg.ThreadCount) {
		return logx.Errorf("%w: max_active_blocks smaller than thread_count", ErrBadConfig)
	}
	if cfg.IntakeQueueSize <= 0 || cfg.NotificationBacklog <= 0 {
		return logx.Errorf("%w: queue sizes must be positive", ErrBadConfig)
	}
	return nil
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("bad ed25519 private key length")
	}
	return ed25519.PrivateKey(key), nil
}
