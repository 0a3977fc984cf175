// Package config loads and validates the driftfs configuration from file,
// environment, and defaults.
//
// Precedence (highest to lowest): CLI flags, environment variables
// (DRIFTFS_*), configuration file, defaults.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the complete driftfs configuration.
type Config struct {
	Logging  Logging  `mapstructure:"logging"`
	Mount    Mount    `mapstructure:"mount"`
	Features Features `mapstructure:"features"`
	Tuning   Tuning   `mapstructure:"tuning"`
}

// Logging controls log output.
type Logging struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	// Format selects the output encoding: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// Mount names the directories and sockets a mounted filesystem uses.
type Mount struct {
	// Source is the backing directory whose contents the mount mirrors.
	Source string `mapstructure:"source"`
	// Mountpoint is where the filesystem is exposed.
	Mountpoint string `mapstructure:"mountpoint"`
	// SocketPath is the unix socket the control channel listens on.
	SocketPath string `mapstructure:"socket_path" validate:"required"`
	// DictCachePath persists the active compression dictionary across
	// restarts. Empty disables persistence.
	DictCachePath string `mapstructure:"dict_cache_path"`
}

// Features are the capture pipeline's feature flags.
type Features struct {
	// Compression enables zstd compression of exported segments.
	Compression bool `mapstructure:"compression"`
	// AdaptiveCompression skips compressing segments while the trailing
	// ratio window shows no benefit. Requires Compression.
	AdaptiveCompression bool `mapstructure:"adaptive_compression"`
	// WriteCoalescing merges contiguous writes per handle before they
	// reach the journal.
	WriteCoalescing bool `mapstructure:"write_coalescing"`
	// DeltaWrites journals only the changed byte runs of each write.
	DeltaWrites bool `mapstructure:"delta_writes"`
	// Prune compacts the journal at export time, dropping records whose
	// effects are shadowed by later ones.
	Prune bool `mapstructure:"prune"`
	// Debug enables per-operation debug logging.
	Debug bool `mapstructure:"debug"`
}

// Tuning holds the pipeline's numeric knobs. Zero values take defaults.
type Tuning struct {
	// SegmentMaxBytes bounds the plain record bytes packed into one
	// segment of an exported stream.
	SegmentMaxBytes int `mapstructure:"segment_max_bytes" validate:"gt=0"`
	// CoalesceMaxBytes bounds a per-handle write buffer.
	CoalesceMaxBytes int `mapstructure:"coalesce_max_bytes" validate:"gt=0"`
	// AdaptiveWindow is the number of trailing segments the compression
	// ratio is averaged over.
	AdaptiveWindow int `mapstructure:"adaptive_window" validate:"gt=0"`
	// AdaptiveMinRatio is the compressed/plain ratio above which the
	// trailing mean marks payloads incompressible.
	AdaptiveMinRatio float64 `mapstructure:"adaptive_min_ratio" validate:"gt=0,lte=1"`
	// TrainSampleCount triggers dictionary training after this many
	// exported segments.
	TrainSampleCount int `mapstructure:"train_sample_count" validate:"gt=0"`
	// TrainSampleBytes triggers dictionary training after this much
	// accumulated sample volume.
	TrainSampleBytes int `mapstructure:"train_sample_bytes" validate:"gt=0"`
	// DictMaxBytes bounds the size of a trained dictionary.
	DictMaxBytes int `mapstructure:"dict_max_bytes" validate:"gt=0"`
}

// Load reads the configuration from path (empty means ./driftfs.yaml if
// present), layers DRIFTFS_* environment variables on top, applies defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("DRIFTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key gets a viper default. AutomaticEnv only resolves keys
	// viper already knows about, and explicit false values in the file or
	// environment must survive unmarshaling.
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("mount.source", "")
	v.SetDefault("mount.mountpoint", "")
	v.SetDefault("mount.socket_path", "")
	v.SetDefault("mount.dict_cache_path", "")
	v.SetDefault("features.compression", true)
	v.SetDefault("features.adaptive_compression", true)
	v.SetDefault("features.write_coalescing", true)
	v.SetDefault("features.delta_writes", false)
	v.SetDefault("features.prune", true)
	v.SetDefault("features.debug", false)
	v.SetDefault("tuning.segment_max_bytes", DefaultSegmentMaxBytes)
	v.SetDefault("tuning.coalesce_max_bytes", DefaultCoalesceMaxBytes)
	v.SetDefault("tuning.adaptive_window", DefaultAdaptiveWindow)
	v.SetDefault("tuning.adaptive_min_ratio", DefaultAdaptiveMinRatio)
	v.SetDefault("tuning.train_sample_count", DefaultTrainSampleCount)
	v.SetDefault("tuning.train_sample_bytes", DefaultTrainSampleBytes)
	v.SetDefault("tuning.dict_max_bytes", DefaultDictMaxBytes)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("driftfs")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing file means env and defaults only; a broken file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
