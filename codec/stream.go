package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/driftfs/driftfs/journal"
)

const (
	streamVersion   = 1
	streamHeaderLen = 4 + 1 + 4 + 8
)

var streamMagic = [4]byte{'D', 'I', 'F', 'F'}

// EncodeStream serializes records into a complete diff stream: a stream
// header followed by one or more segments. Records are packed into segments
// of at most segMaxBytes of plain record bytes; a segment boundary never
// splits a record, so a single oversized record gets a segment of its own.
func EncodeStream(recs []journal.Record, c *Compressor, segMaxBytes int) ([]byte, error) {
	if segMaxBytes <= 0 {
		segMaxBytes = 1 << 20
	}

	var (
		segments []byte
		segCount uint32
		plain    []byte
		segRecs  int
	)

	flush := func() error {
		if segRecs == 0 {
			return nil
		}
		var err error
		segments, err = appendSegment(segments, plain, segRecs, c)
		if err != nil {
			return err
		}
		segCount++
		plain = plain[:0]
		segRecs = 0
		return nil
	}

	for i := range recs {
		if segRecs > 0 && len(plain)+encodedLen(&recs[i]) > segMaxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		var err error
		plain, err = appendRecord(plain, &recs[i])
		if err != nil {
			return nil, err
		}
		segRecs++
	}
	if err := flush(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, streamHeaderLen+len(segments))
	out = append(out, streamMagic[:]...)
	out = append(out, streamVersion)
	out = binary.BigEndian.AppendUint32(out, segCount)
	out = binary.BigEndian.AppendUint64(out, uint64(len(recs)))
	out = append(out, segments...)
	return out, nil
}

// DecodeStream validates and decodes a complete diff stream. Every segment
// is checksum-verified and fully decoded before any record is returned; a
// structural failure anywhere yields an error and no records.
func DecodeStream(data []byte, dicts DictProvider) ([]journal.Record, error) {
	if len(data) < streamHeaderLen {
		return nil, errors.Wrap(ErrTruncated, "stream header")
	}
	if [4]byte(data[:4]) != streamMagic {
		return nil, errors.Wrap(ErrBadMagic, "stream")
	}
	if data[4] != streamVersion {
		return nil, errors.Wrapf(ErrVersion, "stream version %d", data[4])
	}
	segCount := binary.BigEndian.Uint32(data[5:])
	totalRecs := binary.BigEndian.Uint64(data[9:])

	// Header counts are untrusted; cap the initial allocation.
	hint := totalRecs
	if hint > 4096 {
		hint = 4096
	}
	recs := make([]journal.Record, 0, hint)
	rest := data[streamHeaderLen:]

	for s := uint32(0); s < segCount; s++ {
		plain, consumed, recordCount, err := openSegment(rest, dicts)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", s)
		}
		rest = rest[consumed:]

		for r := uint32(0); r < recordCount; r++ {
			rec, n, err := decodeRecord(plain)
			if err != nil {
				return nil, errors.Wrapf(err, "segment %d record %d", s, r)
			}
			plain = plain[n:]
			recs = append(recs, rec)
		}
		if len(plain) != 0 {
			return nil, errors.Wrapf(ErrTrailingGarbage, "segment %d: %d bytes", s, len(plain))
		}
	}

	if len(rest) != 0 {
		return nil, errors.Wrapf(ErrTrailingGarbage, "%d bytes after segment %d", len(rest), segCount)
	}
	if uint64(len(recs)) != totalRecs {
		return nil, errors.Errorf("codec: stream header claims %d records, decoded %d", totalRecs, len(recs))
	}
	return recs, nil
}
