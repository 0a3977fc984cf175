// Package control implements the unix-socket command channel a mounted
// filesystem answers on. The protocol is a single command byte per
// connection followed by one framed response:
//
//	'g'  export the pending diff stream and advance the checkpoint
//	'c'  clear pending records without exporting
//	't'  force a dictionary training pass
//	'm'  log an operator-visible checkpoint marker
//
// Response frame: a status byte, then for status 0 (ok) a big-endian u64
// payload length and the payload, or for status 1 (error) a big-endian u16
// message length and the message text.
package control

const (
	CmdExport = 'g'
	CmdClear  = 'c'
	CmdTrain  = 't'
	CmdMark   = 'm'

	statusOK  = 0
	statusErr = 1
)

// DiffSource is what the server exposes over the socket. A mounted
// filesystem implements it.
type DiffSource interface {
	// ExportDiff flushes pending writes, encodes every record past the
	// checkpoint into a diff stream, and advances the checkpoint.
	ExportDiff() ([]byte, error)
	// Reset discards pending records and aligns the checkpoint with the
	// sequence counter.
	Reset() error
	// Train forces a dictionary training pass on the accumulated samples.
	Train() error
	// Mark logs an operator-visible checkpoint marker with the current
	// journal position.
	Mark()
}
