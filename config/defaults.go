package config

// Pipeline defaults. Compression, adaptive skipping, write coalescing, and
// pruning are on; delta writes stay opt-in because they add a read to every
// overlapping write.
const (
	DefaultSegmentMaxBytes  = 1 << 20
	DefaultCoalesceMaxBytes = 512 << 10
	DefaultAdaptiveWindow   = 8
	DefaultAdaptiveMinRatio = 0.95
	DefaultTrainSampleCount = 256
	DefaultTrainSampleBytes = 4 << 20
	DefaultDictMaxBytes     = 112 << 10
)

// Default returns a configuration with every default applied and no mount
// paths set.
func Default() *Config {
	cfg := &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Features: Features{
			Compression:         true,
			AdaptiveCompression: true,
			WriteCoalescing:     true,
			Prune:               true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields. Feature booleans are not
// touched here; viper defaults decide those so an explicit false survives.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Tuning.SegmentMaxBytes == 0 {
		cfg.Tuning.SegmentMaxBytes = DefaultSegmentMaxBytes
	}
	if cfg.Tuning.CoalesceMaxBytes == 0 {
		cfg.Tuning.CoalesceMaxBytes = DefaultCoalesceMaxBytes
	}
	if cfg.Tuning.AdaptiveWindow == 0 {
		cfg.Tuning.AdaptiveWindow = DefaultAdaptiveWindow
	}
	if cfg.Tuning.AdaptiveMinRatio == 0 {
		cfg.Tuning.AdaptiveMinRatio = DefaultAdaptiveMinRatio
	}
	if cfg.Tuning.TrainSampleCount == 0 {
		cfg.Tuning.TrainSampleCount = DefaultTrainSampleCount
	}
	if cfg.Tuning.TrainSampleBytes == 0 {
		cfg.Tuning.TrainSampleBytes = DefaultTrainSampleBytes
	}
	if cfg.Tuning.DictMaxBytes == 0 {
		cfg.Tuning.DictMaxBytes = DefaultDictMaxBytes
	}
}
