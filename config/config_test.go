package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mount:
  socket_path: /run/driftfs.sock
`))
	require.NoError(t, err)

	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.True(t, cfg.Features.Compression)
	require.True(t, cfg.Features.AdaptiveCompression)
	require.True(t, cfg.Features.WriteCoalescing)
	require.True(t, cfg.Features.Prune)
	require.False(t, cfg.Features.DeltaWrites)
	require.False(t, cfg.Features.Debug)
	require.Equal(t, DefaultSegmentMaxBytes, cfg.Tuning.SegmentMaxBytes)
	require.Equal(t, DefaultCoalesceMaxBytes, cfg.Tuning.CoalesceMaxBytes)
	require.Equal(t, DefaultAdaptiveWindow, cfg.Tuning.AdaptiveWindow)
	require.Equal(t, DefaultAdaptiveMinRatio, cfg.Tuning.AdaptiveMinRatio)
	require.Equal(t, DefaultTrainSampleCount, cfg.Tuning.TrainSampleCount)
	require.Equal(t, DefaultTrainSampleBytes, cfg.Tuning.TrainSampleBytes)
	require.Equal(t, DefaultDictMaxBytes, cfg.Tuning.DictMaxBytes)
}

func TestLoadExplicitFalseSurvives(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mount:
  socket_path: /run/driftfs.sock
features:
  compression: false
  adaptive_compression: false
`))
	require.NoError(t, err)
	require.False(t, cfg.Features.Compression)
	require.False(t, cfg.Features.AdaptiveCompression)
}

func TestLoadFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
  format: json
mount:
  source: /srv/data
  mountpoint: /mnt/drift
  socket_path: /run/driftfs.sock
  dict_cache_path: /var/cache/driftfs/active.dict
tuning:
  segment_max_bytes: 65536
  adaptive_window: 4
`))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "/srv/data", cfg.Mount.Source)
	require.Equal(t, 65536, cfg.Tuning.SegmentMaxBytes)
	require.Equal(t, 4, cfg.Tuning.AdaptiveWindow)
	// Untouched knobs still take defaults.
	require.Equal(t, DefaultCoalesceMaxBytes, cfg.Tuning.CoalesceMaxBytes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("DRIFTFS_LOGGING_LEVEL", "warn")
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
mount:
  socket_path: /run/driftfs.sock
`))
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DRIFTFS_MOUNT_SOCKET_PATH", "/run/driftfs.sock")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "/run/driftfs.sock", cfg.Mount.SocketPath)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"missing socket", func(c *Config) { c.Mount.SocketPath = "" }},
		{"zero segment", func(c *Config) { c.Tuning.SegmentMaxBytes = -1 }},
		{"ratio above one", func(c *Config) { c.Tuning.AdaptiveMinRatio = 1.5 }},
		{"adaptive without compression", func(c *Config) {
			c.Features.Compression = false
			c.Features.AdaptiveCompression = true
		}},
		{"delta with coalescing", func(c *Config) {
			c.Features.DeltaWrites = true
			c.Features.WriteCoalescing = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Mount.SocketPath = "/run/driftfs.sock"
			tt.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Mount.SocketPath = "/run/driftfs.sock"
	require.NoError(t, Validate(cfg))
}
