package transfer

import (
	"errors"
	"io"
	"net"
	"time"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/monitor"
	"p2p-nebula/nebula/pkg/protocol"
	"p2p-nebula/nebula/pkg/storage"
	"p2p-nebula/nebula/pkg/transport/tcp"
)

// Server answers SEARCH and REQUEST exchanges from the local store.
type Server struct {
	store     *storage.Store
	metrics   *monitor.Metrics
	ioTimeout time.Duration
}

// NewServer creates a handler. A zero ioTimeout means reads and writes never time out.
func NewServer(store *storage.Store, metrics *monitor.Metrics, ioTimeout time.Duration) *Server {
	return &Server{store: store, metrics: metrics, ioTimeout: ioTimeout}
}

// Handle serves exactly one request on conn and closes it.
func (s *Server) Handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	c := tcp.WithIdleTimeout(conn, s.ioTimeout)

	line, err := tcp.ReadStream(c)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Sugar.Warnf("[TransferServer] read request failed: remote=%s err=%v", remote, err)
		}
		return
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		s.metrics.MalformedMessages.WithLabelValues("tcp").Inc()
		logger.Sugar.Warnf("[TransferServer] dropping malformed request: remote=%s err=%v", remote, err)
		return
	}

	switch req.Command {
	case protocol.CmdSearch:
		s.handleSearch(c, remote, req)
	case protocol.CmdRequest:
		s.handleRequest(c, remote, req)
	}
}

func (s *Server) handleSearch(c net.Conn, remote net.Addr, req protocol.Request) {
	resp, result := protocol.NotFound(), "not_found"
	if _, ok := s.store.LookupByID(req.FileID); ok {
		resp, result = protocol.Found(req.FileID), "found"
	}
	s.metrics.Requests.WithLabelValues(req.Command, result).Inc()

	if err := tcp.SendStream(c, resp.Encode()); err != nil {
		logger.Sugar.Warnf("[TransferServer] search reply failed: remote=%s err=%v", remote, err)
		return
	}
	logger.Sugar.Debugf("[TransferServer] search: remote=%s id=%s result=%s", remote, req.FileID, result)
}

// handleRequest streams the file after a START line. An unknown id gets no
// reply at all; the requester sees the connection close without START.
func (s *Server) handleRequest(c net.Conn, remote net.Addr, req protocol.Request) {
	f, rec, err := s.store.Open(req.FileID)
	if err != nil {
		s.metrics.Requests.WithLabelValues(req.Command, "not_found").Inc()
		logger.Sugar.Infof("[TransferServer] request for unknown file: remote=%s id=%s", remote, req.FileID)
		return
	}
	defer f.Close()

	start := time.Now()
	if err := tcp.SendStream(c, protocol.Start(rec.Name).Encode()); err != nil {
		s.metrics.Requests.WithLabelValues(req.Command, "error").Inc()
		logger.Sugar.Warnf("[TransferServer] start line failed: remote=%s err=%v", remote, err)
		return
	}
	n, err := io.Copy(c, f)
	if err != nil {
		s.metrics.Requests.WithLabelValues(req.Command, "error").Inc()
		logger.Sugar.Warnf("[TransferServer] stream aborted: remote=%s id=%s sent=%d err=%v", remote, rec.ID, n, err)
		return
	}

	s.metrics.Requests.WithLabelValues(req.Command, "served").Inc()
	s.metrics.RecordTransfer(monitor.Served, n, time.Since(start))
	logger.Sugar.Infof("[TransferServer] served file: remote=%s name=%s id=%s bytes=%d", remote, rec.Name, rec.ID, n)
}
