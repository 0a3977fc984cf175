package codec

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/journal"
)

func sampleRecords() []journal.Record {
	return []journal.Record{
		{Seq: 1, Op: journal.OpCreate, Path: "a.txt", Mode: 0o644},
		{Seq: 2, Op: journal.OpWrite, Path: "a.txt", Offset: 0, Data: []byte("Hello")},
		{Seq: 3, Op: journal.OpWrite, Path: "a.txt", Offset: 5, Data: []byte(" World")},
		{Seq: 4, Op: journal.OpTruncate, Path: "a.txt", Size: 5},
		{Seq: 5, Op: journal.OpRename, Path: "a.txt", NewPath: "b.txt"},
		{Seq: 6, Op: journal.OpLink, Path: "b.txt", NewPath: "c.txt"},
		{Seq: 7, Op: journal.OpSymlink, Path: "s", Data: []byte("b.txt")},
		{Seq: 8, Op: journal.OpSetMode, Path: "b.txt", Mode: 0o600},
		{Seq: 9, Op: journal.OpSetOwner, Path: "b.txt", UID: 1000, GID: 1000},
		{Seq: 10, Op: journal.OpSetTimes, Path: "b.txt", Atime: 1700000000e9, Mtime: 1700000001e9},
		{Seq: 11, Op: journal.OpMkdir, Path: "d", Mode: 0o755},
		{Seq: 12, Op: journal.OpRmdir, Path: "d"},
		{Seq: 13, Op: journal.OpUnlink, Path: "c.txt"},
	}
}

func plainCompressor() *Compressor {
	return NewCompressor(CompressorConfig{Enabled: false}, nil)
}

func TestStreamRoundTrip(t *testing.T) {
	in := sampleRecords()
	stream, err := EncodeStream(in, plainCompressor(), 0)
	require.NoError(t, err)

	out, err := DecodeStream(stream, nil)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestStreamRoundTripCompressed(t *testing.T) {
	in := sampleRecords()
	stream, err := EncodeStream(in, NewCompressor(CompressorConfig{Enabled: true}, nil), 0)
	require.NoError(t, err)

	out, err := DecodeStream(stream, nil)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestStreamEmpty(t *testing.T) {
	stream, err := EncodeStream(nil, plainCompressor(), 0)
	require.NoError(t, err)
	require.Len(t, stream, streamHeaderLen)

	out, err := DecodeStream(stream, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestStreamSegmentation(t *testing.T) {
	var in []journal.Record
	for i := 0; i < 100; i++ {
		in = append(in, journal.Record{
			Seq: uint64(i + 1), Op: journal.OpWrite,
			Path: fmt.Sprintf("f%02d", i), Data: make([]byte, 256),
		})
	}
	// Small segment budget forces many segments; boundaries must never
	// split a record.
	stream, err := EncodeStream(in, plainCompressor(), 1024)
	require.NoError(t, err)

	out, err := DecodeStream(stream, nil)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestStreamRejectsBadMagic(t *testing.T) {
	stream, err := EncodeStream(sampleRecords(), plainCompressor(), 0)
	require.NoError(t, err)
	stream[0] = 'X'

	_, err = DecodeStream(stream, nil)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestStreamRejectsCorruptPayload(t *testing.T) {
	stream, err := EncodeStream(sampleRecords(), plainCompressor(), 0)
	require.NoError(t, err)
	// Flip a byte inside the first segment's payload.
	stream[streamHeaderLen+segmentHeaderLen+3] ^= 0xFF

	_, err = DecodeStream(stream, nil)
	var cerr *ChecksumError
	require.ErrorAs(t, err, &cerr)
}

func TestStreamRejectsTruncation(t *testing.T) {
	stream, err := EncodeStream(sampleRecords(), plainCompressor(), 0)
	require.NoError(t, err)

	for _, cut := range []int{3, streamHeaderLen + 4, len(stream) - 1} {
		_, err = DecodeStream(stream[:cut], nil)
		require.Error(t, err, "cut at %d", cut)
		require.ErrorIs(t, err, ErrTruncated, "cut at %d", cut)
	}
}

func TestStreamRejectsTrailingGarbage(t *testing.T) {
	stream, err := EncodeStream(sampleRecords(), plainCompressor(), 0)
	require.NoError(t, err)

	_, err = DecodeStream(append(stream, 0xAA), nil)
	require.ErrorIs(t, err, ErrTrailingGarbage)
}

func TestDecodeRecordRejectsUnknownOp(t *testing.T) {
	buf, err := appendRecord(nil, &journal.Record{Op: journal.OpWrite, Path: "a"})
	require.NoError(t, err)
	buf[0] = 0xEE

	_, _, err = decodeRecord(buf)
	require.ErrorIs(t, err, ErrUnknownOp)
}

func TestEncodeRejectsInvalidOp(t *testing.T) {
	_, err := EncodeStream([]journal.Record{{Op: journal.OpInvalid}}, plainCompressor(), 0)
	require.ErrorIs(t, errors.Cause(err), ErrUnknownOp)
}
