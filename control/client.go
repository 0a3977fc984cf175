package control

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
)

// maxResponseBytes bounds the payload length a client will accept. The
// declared length is untrusted until read; a corrupted or foreign socket
// must fail structurally rather than drive a huge allocation.
const maxResponseBytes = 1 << 30

// RemoteError is a failure reported by the server over the socket, as
// opposed to a transport failure reaching it.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "control: server error: " + e.Msg
}

// Client issues commands to a mounted filesystem's control socket. Each call
// dials a fresh connection; the socket path is the only state.
type Client struct {
	Path string
}

// Export fetches the pending diff stream and advances the server-side
// checkpoint.
func (c *Client) Export() ([]byte, error) {
	return c.roundTrip(CmdExport)
}

// Clear discards pending records without exporting them.
func (c *Client) Clear() error {
	_, err := c.roundTrip(CmdClear)
	return err
}

// Train forces a dictionary training pass.
func (c *Client) Train() error {
	_, err := c.roundTrip(CmdTrain)
	return err
}

// Mark asks the server to log a checkpoint marker.
func (c *Client) Mark() error {
	_, err := c.roundTrip(CmdMark)
	return err
}

func (c *Client) roundTrip(cmd byte) ([]byte, error) {
	conn, err := net.Dial("unix", c.Path)
	if err != nil {
		return nil, errors.Wrap(err, "control: dial")
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{cmd}); err != nil {
		return nil, errors.Wrap(err, "control: send command")
	}
	return readResponse(conn)
}

func readResponse(conn net.Conn) ([]byte, error) {
	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		return nil, errors.Wrap(err, "control: read status")
	}

	switch status[0] {
	case statusOK:
		var n uint64
		if err := binary.Read(conn, binary.BigEndian, &n); err != nil {
			return nil, errors.Wrap(err, "control: read payload length")
		}
		if n > maxResponseBytes {
			return nil, errors.Errorf("control: declared payload length %d exceeds limit", n)
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return nil, errors.Wrap(err, "control: read payload")
		}
		return payload, nil

	case statusErr:
		var n uint16
		if err := binary.Read(conn, binary.BigEndian, &n); err != nil {
			return nil, errors.Wrap(err, "control: read error length")
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(conn, msg); err != nil {
			return nil, errors.Wrap(err, "control: read error message")
		}
		return nil, &RemoteError{Msg: string(msg)}

	default:
		return nil, errors.Errorf("control: bad status byte %d", status[0])
	}
}
