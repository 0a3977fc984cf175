package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate checks cfg against the struct tags plus the cross-field rules the
// tags cannot express. Call it after defaults are applied.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "config: validation")
	}
	if cfg.Features.AdaptiveCompression && !cfg.Features.Compression {
		return errors.New("config: adaptive_compression requires compression")
	}
	if cfg.Features.DeltaWrites && cfg.Features.WriteCoalescing {
		// Delta runs are computed against the backing file, which a
		// pending coalesce buffer has not reached yet.
		return errors.New("config: delta_writes and write_coalescing are mutually exclusive")
	}
	return nil
}
