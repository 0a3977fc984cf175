package codec

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	segmentVersion   = 1
	segmentHeaderLen = 4 + 1 + 1 + 4 + 4 + 4 + 8 + 4

	flagCompressed = 1 << 0
)

var segmentMagic = [4]byte{'D', 'S', 'E', 'G'}

// segmentHeader describes one self-contained chunk of the diff stream.
type segmentHeader struct {
	Version         uint8
	Compressed      bool
	DictID          uint32
	RecordCount     uint32
	UncompressedLen uint32
	Checksum        uint64
	PayloadLen      uint32
}

func appendSegment(buf []byte, plain []byte, recordCount int, c *Compressor) ([]byte, error) {
	payload, compressed, dictID, err := c.Encode(plain)
	if err != nil {
		return nil, err
	}

	var flags uint8
	if compressed {
		flags |= flagCompressed
	}

	buf = append(buf, segmentMagic[:]...)
	buf = append(buf, segmentVersion, flags)
	buf = binary.BigEndian.AppendUint32(buf, dictID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(recordCount))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(plain)))
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(plain))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

func decodeSegmentHeader(buf []byte) (segmentHeader, error) {
	var h segmentHeader
	if len(buf) < segmentHeaderLen {
		return h, errors.Wrap(ErrTruncated, "segment header")
	}
	if [4]byte(buf[:4]) != segmentMagic {
		return h, errors.Wrap(ErrBadMagic, "segment")
	}
	h.Version = buf[4]
	if h.Version != segmentVersion {
		return h, errors.Wrapf(ErrVersion, "segment version %d", h.Version)
	}
	h.Compressed = buf[5]&flagCompressed != 0
	h.DictID = binary.BigEndian.Uint32(buf[6:])
	h.RecordCount = binary.BigEndian.Uint32(buf[10:])
	h.UncompressedLen = binary.BigEndian.Uint32(buf[14:])
	h.Checksum = binary.BigEndian.Uint64(buf[18:])
	h.PayloadLen = binary.BigEndian.Uint32(buf[26:])
	return h, nil
}

// openSegment validates one segment at the head of buf and returns its
// uncompressed record bytes plus the total bytes consumed. The checksum is
// verified against the uncompressed payload before anything is decoded.
func openSegment(buf []byte, dicts DictProvider) ([]byte, int, uint32, error) {
	h, err := decodeSegmentHeader(buf)
	if err != nil {
		return nil, 0, 0, err
	}
	total := segmentHeaderLen + int(h.PayloadLen)
	if len(buf) < total {
		return nil, 0, 0, errors.Wrap(ErrTruncated, "segment payload")
	}
	payload := buf[segmentHeaderLen:total]

	plain := payload
	if h.Compressed {
		plain, err = decompress(payload, h.DictID, dicts)
		if err != nil {
			return nil, 0, 0, err
		}
	}
	if len(plain) != int(h.UncompressedLen) {
		return nil, 0, 0, errors.Wrapf(ErrTruncated,
			"segment uncompressed length %d, header says %d", len(plain), h.UncompressedLen)
	}
	if sum := xxhash.Sum64(plain); sum != h.Checksum {
		return nil, 0, 0, &ChecksumError{Want: h.Checksum, Got: sum}
	}
	return plain, total, h.RecordCount, nil
}
