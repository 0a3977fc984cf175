package control

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server answers control commands on a unix socket. One command per
// connection turn; clients may hold the connection open and issue several.
type Server struct {
	src DiffSource
	log *logrus.Entry

	ln net.Listener

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// NewServer binds path and starts the accept loop. A stale socket file from
// a previous run is removed first.
func NewServer(path string, src DiffSource, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "control: remove stale socket")
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, "control: listen")
	}

	s := &Server{
		src:   src,
		log:   log.WithField("socket", path),
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Info("control socket listening")
	return s, nil
}

// Close stops accepting, closes live connections, and waits for handlers to
// drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	return errors.Wrap(err, "control: close listener")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.WithError(err).Warn("control accept failed")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
	s.log.Debug("control client connected")

	cmd := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, cmd); err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debug("control read")
			}
			return
		}
		if err := s.dispatch(conn, cmd[0]); err != nil {
			s.log.WithError(err).Warn("control response failed")
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, cmd byte) error {
	switch cmd {
	case CmdExport:
		s.log.Info("control: export requested")
		stream, err := s.src.ExportDiff()
		if err != nil {
			return writeError(conn, err)
		}
		return writeOK(conn, stream)

	case CmdClear:
		s.log.Info("control: clear requested")
		if err := s.src.Reset(); err != nil {
			return writeError(conn, err)
		}
		return writeOK(conn, nil)

	case CmdTrain:
		s.log.Info("control: training requested")
		if err := s.src.Train(); err != nil {
			return writeError(conn, err)
		}
		return writeOK(conn, nil)

	case CmdMark:
		s.src.Mark()
		return writeOK(conn, nil)

	default:
		s.log.WithField("cmd", string(cmd)).Warn("control: unknown command")
		return writeError(conn, errors.Errorf("unknown command %q", cmd))
	}
}

func writeOK(conn net.Conn, payload []byte) error {
	hdr := make([]byte, 9)
	hdr[0] = statusOK
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(payload)))
	if _, err := conn.Write(hdr); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func writeError(conn net.Conn, cause error) error {
	msg := cause.Error()
	if len(msg) > 1<<16-1 {
		msg = msg[:1<<16-1]
	}
	hdr := make([]byte, 3)
	hdr[0] = statusErr
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(msg)))
	if _, err := conn.Write(hdr); err != nil {
		return err
	}
	_, err := conn.Write([]byte(msg))
	return err
}
