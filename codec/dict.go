package codec

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DictProvider resolves a dictionary id recorded in a segment header to the
// raw dictionary bytes it was compressed with.
type DictProvider interface {
	Lookup(id uint32) ([]byte, bool)
}

// Dictionary is an immutable trained dictionary. Once published it is never
// mutated; rotation swaps the whole value.
type Dictionary struct {
	ID  uint32
	Raw []byte
}

// StaticDicts is a fixed id-to-dictionary map, used by the replay tool after
// loading the cache file.
type StaticDicts map[uint32][]byte

func (s StaticDicts) Lookup(id uint32) ([]byte, bool) {
	raw, ok := s[id]
	return raw, ok
}

// DictionaryManagerConfig carries the training thresholds.
type DictionaryManagerConfig struct {
	// CachePath is where the newest dictionary is persisted. Empty
	// disables persistence.
	CachePath string
	// MaxDictBytes bounds the size of a trained dictionary.
	MaxDictBytes int
	// TrainSampleCount triggers a training pass once this many segment
	// samples have accumulated.
	TrainSampleCount int
	// TrainSampleBytes triggers a training pass once the accumulated
	// sample volume reaches this many bytes.
	TrainSampleBytes int
}

// DictionaryManager owns the dictionary lifecycle: it accumulates plain
// segment bytes as training samples, runs training passes off the hot path,
// atomically publishes the newest dictionary, and keeps every dictionary it
// has ever published available for decode.
type DictionaryManager struct {
	cfg DictionaryManagerConfig
	log *logrus.Entry

	active atomic.Pointer[Dictionary]

	mu           sync.Mutex
	known        map[uint32][]byte
	samples      [][]byte
	sampleBytes  int
	nextID       uint32
	training     bool

	encMu sync.Mutex
	enc   *zstd.Encoder
	encID uint32
}

// NewDictionaryManager returns a manager with no active dictionary. Call
// LoadCache to pick up a dictionary persisted by a previous run.
func NewDictionaryManager(cfg DictionaryManagerConfig, log *logrus.Entry) *DictionaryManager {
	if cfg.MaxDictBytes <= 0 {
		cfg.MaxDictBytes = 112 << 10
	}
	if cfg.TrainSampleCount <= 0 {
		cfg.TrainSampleCount = 256
	}
	if cfg.TrainSampleBytes <= 0 {
		cfg.TrainSampleBytes = 4 << 20
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DictionaryManager{
		cfg:    cfg,
		log:    log,
		known:  make(map[uint32][]byte),
		nextID: 1,
	}
}

// Active returns the newest published dictionary, or nil before the first
// successful training pass.
func (m *DictionaryManager) Active() *Dictionary {
	return m.active.Load()
}

// Lookup implements DictProvider over every dictionary this manager has
// published or loaded.
func (m *DictionaryManager) Lookup(id uint32) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.known[id]
	return raw, ok
}

// AddSample records a plain segment for future training. The bytes are
// copied; callers may reuse the slice.
func (m *DictionaryManager) AddSample(plain []byte) {
	if len(plain) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Bound sample memory: once past double the byte threshold, stop
	// accumulating until a training pass drains the set.
	if m.sampleBytes > 2*m.cfg.TrainSampleBytes {
		return
	}
	cp := make([]byte, len(plain))
	copy(cp, plain)
	m.samples = append(m.samples, cp)
	m.sampleBytes += len(cp)
}

// MaybeTrain starts an asynchronous training pass if the sample thresholds
// are met and no pass is already running. It never blocks the caller.
func (m *DictionaryManager) MaybeTrain() {
	m.mu.Lock()
	ready := !m.training &&
		(len(m.samples) >= m.cfg.TrainSampleCount || m.sampleBytes >= m.cfg.TrainSampleBytes)
	if ready {
		m.training = true
	}
	m.mu.Unlock()

	if !ready {
		return
	}
	go func() {
		if err := m.train(); err != nil {
			m.log.WithError(err).Warn("dictionary training failed")
		}
	}()
}

// Train runs a synchronous training pass regardless of thresholds, as
// requested by the control channel's train command.
func (m *DictionaryManager) Train() error {
	m.mu.Lock()
	if m.training {
		m.mu.Unlock()
		return errors.New("codec: training already in progress")
	}
	m.training = true
	m.mu.Unlock()

	return m.train()
}

func (m *DictionaryManager) train() error {
	m.mu.Lock()
	samples := m.samples
	id := m.nextID
	m.samples = nil
	m.sampleBytes = 0
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.training = false
		m.mu.Unlock()
	}()

	if len(samples) == 0 {
		return errors.New("codec: no samples to train on")
	}

	raw, err := dict.BuildZstdDict(samples, dict.Options{
		MaxDictSize: m.cfg.MaxDictBytes,
		HashBytes:   6,
		ZstdDictID:  id,
		ZstdLevel:   zstd.SpeedDefault,
	})
	if err != nil {
		return errors.Wrap(err, "codec: dictionary training")
	}

	d := &Dictionary{ID: id, Raw: raw}
	m.adopt(d)

	if m.cfg.CachePath != "" {
		if err := SaveDictionaryCache(m.cfg.CachePath, d); err != nil {
			// Persistence failure degrades restarts, not this run.
			m.log.WithError(err).Warn("dictionary cache write failed")
		}
	}
	m.log.WithFields(logrus.Fields{
		"dict_id":    d.ID,
		"dict_bytes": len(d.Raw),
		"samples":    len(samples),
	}).Info("adopted new compression dictionary")
	return nil
}

// adopt publishes d as the active dictionary and registers it for decode.
// In-flight compressions against the previous value complete safely; the
// swap is a single atomic pointer update.
func (m *DictionaryManager) adopt(d *Dictionary) {
	m.mu.Lock()
	m.known[d.ID] = d.Raw
	if d.ID >= m.nextID {
		m.nextID = d.ID + 1
	}
	m.mu.Unlock()
	m.active.Store(d)
}

// LoadCache reads a dictionary persisted by a previous run. A missing cache
// file is not an error.
func (m *DictionaryManager) LoadCache() error {
	if m.cfg.CachePath == "" {
		return nil
	}
	d, err := LoadDictionaryCache(m.cfg.CachePath)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil
		}
		return err
	}
	m.adopt(d)
	m.log.WithField("dict_id", d.ID).Info("loaded cached compression dictionary")
	return nil
}

// encoderFor returns a zstd encoder bound to d, caching the encoder for the
// active dictionary between calls.
func (m *DictionaryManager) encoderFor(d *Dictionary) (*zstd.Encoder, error) {
	m.encMu.Lock()
	defer m.encMu.Unlock()

	if m.enc != nil && m.encID == d.ID {
		return m.enc, nil
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderDict(d.Raw))
	if err != nil {
		return nil, errors.Wrapf(err, "codec: zstd encoder for dictionary %d", d.ID)
	}
	if m.enc != nil {
		m.enc.Close()
	}
	m.enc = enc
	m.encID = d.ID
	return enc, nil
}

// decompress expands a compressed segment payload, resolving dictID through
// dicts when nonzero.
func decompress(payload []byte, dictID uint32, dicts DictProvider) ([]byte, error) {
	opts := []zstd.DOption{}
	if dictID != 0 {
		if dicts == nil {
			return nil, &DictUnavailableError{ID: dictID}
		}
		raw, ok := dicts.Lookup(dictID)
		if !ok {
			return nil, &DictUnavailableError{ID: dictID}
		}
		opts = append(opts, zstd.WithDecoderDicts(raw))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "codec: zstd decoder")
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, errors.Wrap(err, "codec: segment decompress")
	}
	return plain, nil
}

// Dictionary cache file: magic "DDCT", version byte, u32 id, u32 length,
// raw dictionary bytes.
const dictCacheVersion = 1

var dictCacheMagic = [4]byte{'D', 'D', 'C', 'T'}

// SaveDictionaryCache atomically persists d to path (write temp, rename) so
// a concurrent reader never observes a partial dictionary.
func SaveDictionaryCache(path string, d *Dictionary) error {
	buf := make([]byte, 0, 13+len(d.Raw))
	buf = append(buf, dictCacheMagic[:]...)
	buf = append(buf, dictCacheVersion)
	buf = binary.BigEndian.AppendUint32(buf, d.ID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(d.Raw)))
	buf = append(buf, d.Raw...)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "codec: dictionary cache dir")
	}
	tmp, err := os.CreateTemp(dir, ".dict-*")
	if err != nil {
		return errors.Wrap(err, "codec: dictionary cache temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return errors.Wrap(err, "codec: dictionary cache write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "codec: dictionary cache close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "codec: dictionary cache rename")
}

// LoadDictionaryCache reads a dictionary persisted by SaveDictionaryCache.
func LoadDictionaryCache(path string) (*Dictionary, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "codec: dictionary cache read")
	}
	if len(buf) < 13 {
		return nil, errors.Wrap(ErrTruncated, "dictionary cache")
	}
	if [4]byte(buf[:4]) != dictCacheMagic {
		return nil, errors.Wrap(ErrBadMagic, "dictionary cache")
	}
	if buf[4] != dictCacheVersion {
		return nil, errors.Wrapf(ErrVersion, "dictionary cache version %d", buf[4])
	}
	id := binary.BigEndian.Uint32(buf[5:])
	n := binary.BigEndian.Uint32(buf[9:])
	if len(buf) != 13+int(n) {
		return nil, errors.Wrap(ErrTruncated, "dictionary cache payload")
	}
	return &Dictionary{ID: id, Raw: buf[13:]}, nil
}
