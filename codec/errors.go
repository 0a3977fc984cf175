package codec

import (
	"fmt"

	"github.com/pkg/errors"
)

// Structural errors: the input is malformed, truncated, or corrupted. They
// are always surfaced to the caller; nothing is ever silently skipped.
var (
	ErrBadMagic        = errors.New("codec: bad magic")
	ErrVersion         = errors.New("codec: unsupported format version")
	ErrTruncated       = errors.New("codec: truncated input")
	ErrUnknownOp       = errors.New("codec: unknown operation tag")
	ErrTrailingGarbage = errors.New("codec: trailing bytes after final segment")
)

// ChecksumError reports a segment whose uncompressed bytes do not match the
// checksum recorded in its header.
type ChecksumError struct {
	Want uint64
	Got  uint64
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("codec: segment checksum mismatch: header %#x, computed %#x", e.Want, e.Got)
}

// DictUnavailableError reports a compressed segment whose dictionary id is
// not known to the decoder.
type DictUnavailableError struct {
	ID uint32
}

func (e *DictUnavailableError) Error() string {
	return fmt.Sprintf("codec: dictionary %d unavailable for decode", e.ID)
}
