package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compressor decides, per segment, whether to compress and with which
// dictionary. It is safe for use from a single exporter goroutine; the
// adaptive window is still mutex-guarded so a forced training pass can read
// it concurrently.
type Compressor struct {
	enabled  bool
	adaptive bool
	minRatio float64
	window   int
	dicts    *DictionaryManager

	plainOnce sync.Once
	plainEnc  *zstd.Encoder
	plainErr  error

	mu     sync.Mutex
	ratios []float64
}

// CompressorConfig carries the compression feature flags and tuning knobs.
type CompressorConfig struct {
	// Enabled turns segment compression on. Off means every segment is
	// stored plain.
	Enabled bool
	// Adaptive enables the ratio-based skip policy.
	Adaptive bool
	// MinRatio is the largest useful compressed/plain ratio; a trailing
	// mean above it marks the payload incompressible.
	MinRatio float64
	// Window is the number of trailing segments the ratio is averaged over.
	Window int
}

// NewCompressor returns a Compressor. dicts may be nil, in which case all
// compression is dictionary-less.
func NewCompressor(cfg CompressorConfig, dicts *DictionaryManager) *Compressor {
	if cfg.Window <= 0 {
		cfg.Window = 8
	}
	if cfg.MinRatio <= 0 {
		cfg.MinRatio = 0.95
	}
	return &Compressor{
		enabled:  cfg.Enabled,
		adaptive: cfg.Adaptive,
		minRatio: cfg.MinRatio,
		window:   cfg.Window,
		dicts:    dicts,
	}
}

// Encode produces the segment payload for plain bytes. It returns the
// payload, whether it is compressed, and the dictionary id it was compressed
// against (zero for none). Plain bytes are always fed to the dictionary
// trainer, compressed or not.
func (c *Compressor) Encode(plain []byte) ([]byte, bool, uint32, error) {
	if c.dicts != nil {
		c.dicts.AddSample(plain)
	}
	if !c.enabled || len(plain) == 0 {
		return plain, false, 0, nil
	}
	if c.adaptive && c.shouldSkip() {
		return plain, false, 0, nil
	}

	var (
		enc    *zstd.Encoder
		dictID uint32
	)
	if c.dicts != nil {
		if d := c.dicts.Active(); d != nil {
			var err error
			enc, err = c.dicts.encoderFor(d)
			if err != nil {
				return nil, false, 0, err
			}
			dictID = d.ID
		}
	}
	if enc == nil {
		var err error
		enc, err = c.plainEncoder()
		if err != nil {
			return nil, false, 0, err
		}
	}

	compressed := enc.EncodeAll(plain, make([]byte, 0, len(plain)/2))
	c.observe(float64(len(compressed)) / float64(len(plain)))

	if len(compressed) >= len(plain) {
		// No benefit on this payload; ship it plain.
		return plain, false, 0, nil
	}
	return compressed, true, dictID, nil
}

func (c *Compressor) plainEncoder() (*zstd.Encoder, error) {
	c.plainOnce.Do(func() {
		c.plainEnc, c.plainErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	if c.plainErr != nil {
		return nil, errors.Wrap(c.plainErr, "codec: zstd encoder")
	}
	return c.plainEnc, nil
}

// shouldSkip reports whether the trailing ratio window shows too little
// benefit to bother compressing the next segment. Skipping consumes the
// oldest observation, so compression is retried once the window drains.
func (c *Compressor) shouldSkip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ratios) < c.window {
		return false
	}
	var sum float64
	for _, r := range c.ratios {
		sum += r
	}
	if sum/float64(len(c.ratios)) < c.minRatio {
		return false
	}
	c.ratios = c.ratios[1:]
	return true
}

func (c *Compressor) observe(ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ratios = append(c.ratios, ratio)
	if len(c.ratios) > c.window {
		c.ratios = c.ratios[len(c.ratios)-c.window:]
	}
}
