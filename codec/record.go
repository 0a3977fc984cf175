package codec

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/driftfs/driftfs/journal"
)

// Record wire format v1, big-endian. Every record uses the same frame; the
// op tag decides which fields carry meaning:
//
//	u8  op
//	u64 seq
//	u16 path length  | path bytes
//	u16 new-path length | new-path bytes
//	u64 offset
//	u64 size
//	u32 mode
//	u32 uid
//	u32 gid
//	i64 atime
//	i64 mtime
//	u32 data length  | data bytes
const recordFixedLen = 1 + 8 + 2 + 2 + 8 + 8 + 4 + 4 + 4 + 8 + 8 + 4

const maxPathLen = math.MaxUint16

func appendRecord(buf []byte, r *journal.Record) ([]byte, error) {
	if len(r.Path) > maxPathLen || len(r.NewPath) > maxPathLen {
		return nil, errors.Errorf("codec: path exceeds %d bytes", maxPathLen)
	}
	if r.Op == journal.OpInvalid || r.Op > journal.OpSetTimes {
		return nil, errors.Wrapf(ErrUnknownOp, "op %d", r.Op)
	}

	buf = append(buf, byte(r.Op))
	buf = binary.BigEndian.AppendUint64(buf, r.Seq)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Path)))
	buf = append(buf, r.Path...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.NewPath)))
	buf = append(buf, r.NewPath...)
	buf = binary.BigEndian.AppendUint64(buf, r.Offset)
	buf = binary.BigEndian.AppendUint64(buf, r.Size)
	buf = binary.BigEndian.AppendUint32(buf, r.Mode)
	buf = binary.BigEndian.AppendUint32(buf, r.UID)
	buf = binary.BigEndian.AppendUint32(buf, r.GID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Atime))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Mtime))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Data)))
	buf = append(buf, r.Data...)
	return buf, nil
}

// decodeRecord reads one record from the head of buf, returning the record
// and the number of bytes consumed. All lengths are bounds-checked so a
// malformed buffer yields a structural error, never a panic.
func decodeRecord(buf []byte) (journal.Record, int, error) {
	var r journal.Record
	n := 0

	need := func(k int) error {
		if len(buf)-n < k {
			return errors.Wrap(ErrTruncated, "record frame")
		}
		return nil
	}

	if err := need(1 + 8 + 2); err != nil {
		return r, 0, err
	}
	r.Op = journal.Op(buf[n])
	n++
	if r.Op == journal.OpInvalid || r.Op > journal.OpSetTimes {
		return r, 0, errors.Wrapf(ErrUnknownOp, "tag %d", buf[0])
	}
	r.Seq = binary.BigEndian.Uint64(buf[n:])
	n += 8

	pathLen := int(binary.BigEndian.Uint16(buf[n:]))
	n += 2
	if err := need(pathLen + 2); err != nil {
		return r, 0, err
	}
	r.Path = string(buf[n : n+pathLen])
	n += pathLen

	newPathLen := int(binary.BigEndian.Uint16(buf[n:]))
	n += 2
	if err := need(newPathLen + 8 + 8 + 4 + 4 + 4 + 8 + 8 + 4); err != nil {
		return r, 0, err
	}
	r.NewPath = string(buf[n : n+newPathLen])
	n += newPathLen

	r.Offset = binary.BigEndian.Uint64(buf[n:])
	n += 8
	r.Size = binary.BigEndian.Uint64(buf[n:])
	n += 8
	r.Mode = binary.BigEndian.Uint32(buf[n:])
	n += 4
	r.UID = binary.BigEndian.Uint32(buf[n:])
	n += 4
	r.GID = binary.BigEndian.Uint32(buf[n:])
	n += 4
	r.Atime = int64(binary.BigEndian.Uint64(buf[n:]))
	n += 8
	r.Mtime = int64(binary.BigEndian.Uint64(buf[n:]))
	n += 8

	dataLen := int(binary.BigEndian.Uint32(buf[n:]))
	n += 4
	if err := need(dataLen); err != nil {
		return r, 0, err
	}
	if dataLen > 0 {
		r.Data = make([]byte, dataLen)
		copy(r.Data, buf[n:n+dataLen])
		n += dataLen
	}
	return r, n, nil
}

// encodedLen returns the exact wire size of r.
func encodedLen(r *journal.Record) int {
	return recordFixedLen + len(r.Path) + len(r.NewPath) + len(r.Data)
}
