package control

import (
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	stream  []byte
	err     error
	resets  int
	trains  int
	marks   int
	exports int
}

func (f *fakeSource) ExportDiff() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports++
	return f.stream, f.err
}

func (f *fakeSource) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.err
}

func (f *fakeSource) Train() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trains++
	return f.err
}

func (f *fakeSource) Mark() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks++
}

func (f *fakeSource) counts() (exports, resets, trains, marks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exports, f.resets, f.trains, f.marks
}

func startServer(t *testing.T, src DiffSource) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := NewServer(path, src, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, path
}

func TestExportRoundTrip(t *testing.T) {
	src := &fakeSource{stream: []byte("DIFF-payload")}
	_, path := startServer(t, src)

	c := &Client{Path: path}
	got, err := c.Export()
	require.NoError(t, err)
	require.Equal(t, []byte("DIFF-payload"), got)
	exports, _, _, _ := src.counts()
	require.Equal(t, 1, exports)
}

func TestExportEmptyStream(t *testing.T) {
	src := &fakeSource{stream: nil}
	_, path := startServer(t, src)

	got, err := (&Client{Path: path}).Export()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClearTrainMark(t *testing.T) {
	src := &fakeSource{}
	_, path := startServer(t, src)
	c := &Client{Path: path}

	require.NoError(t, c.Clear())
	require.NoError(t, c.Train())
	require.NoError(t, c.Mark())
	_, resets, trains, marks := src.counts()
	require.Equal(t, 1, resets)
	require.Equal(t, 1, trains)
	require.Equal(t, 1, marks)
}

func TestServerErrorReachesClient(t *testing.T) {
	src := &fakeSource{err: errors.New("journal unavailable")}
	_, path := startServer(t, src)

	_, err := (&Client{Path: path}).Export()
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	require.Contains(t, rerr.Msg, "journal unavailable")
}

func TestUnknownCommand(t *testing.T) {
	_, path := startServer(t, &fakeSource{})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{'z'})
	require.NoError(t, err)
	_, err = readResponse(conn)
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
}

func TestMultipleCommandsOneConnection(t *testing.T) {
	src := &fakeSource{stream: []byte("x")}
	_, path := startServer(t, src)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		_, err = conn.Write([]byte{CmdExport})
		require.NoError(t, err)
		payload, err := readResponse(conn)
		require.NoError(t, err)
		require.Equal(t, []byte("x"), payload)
	}
	exports, _, _, _ := src.counts()
	require.Equal(t, 3, exports)
}

func TestCloseRemovesAvailability(t *testing.T) {
	srv, path := startServer(t, &fakeSource{})
	require.NoError(t, srv.Close())

	_, err := (&Client{Path: path}).Export()
	require.Error(t, err)
}

func TestStaleSocketReplaced(t *testing.T) {
	src := &fakeSource{stream: []byte("ok")}
	srv, path := startServer(t, src)
	require.NoError(t, srv.Close())

	// The socket file may linger after close; a new server must bind over it.
	srv2, err := NewServer(path, src, nil)
	require.NoError(t, err)
	defer srv2.Close()

	got, err := (&Client{Path: path}).Export()
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), got)
}

func TestResponsePayloadLengthCapped(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		defer server.Close()
		// Well-formed status byte followed by an absurd declared length.
		server.Write([]byte{statusOK, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	}()

	_, err := readResponse(client)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds limit")
}
