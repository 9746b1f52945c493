// Package dual binds a TCP listener and a UDP socket to the same port and
// exposes them as one transport.Transport.
package dual

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/transport"
	"p2p-nebula/nebula/pkg/transport/tcp"
	"p2p-nebula/nebula/pkg/transport/udp"
)

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	host    string
	port    int
	tcp     *tcp.TCPTransport
	udp     *udp.UDPTransport
	running atomic.Bool
	mu      sync.Mutex
}

// New prepares a transport for host:port. Port 0 lets the OS choose the TCP
// port; the UDP socket is then bound to the same number.
func New(host string, port int) *Transport {
	return &Transport{host: host, port: port}
}

// portAttempts bounds how often an OS-chosen TCP port is retried when its
// UDP twin is already taken.
const portAttempts = 8

// listenUDP is swapped in tests to provoke a UDP bind failure.
var listenUDP = (*udp.UDPTransport).Listen

func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running.Load() {
		return nil
	}

	attempts := 1
	if t.port == 0 {
		attempts = portAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		var stream *tcp.TCPTransport
		var dgram *udp.UDPTransport
		stream, dgram, err = t.bind()
		if err != nil {
			if attempts > 1 {
				logger.Sugar.Debugf("[Transport] auto port attempt failed: attempt=%d err=%v", i+1, err)
			}
			continue
		}
		t.tcp, t.udp, t.port = stream, dgram, stream.Port()
		t.running.Store(true)
		logger.Sugar.Infof("[Transport] listening: tcp=%s udp=%s", stream.Addr(), dgram.Addr())
		return nil
	}
	return err
}

// bind opens the TCP listener on the configured port and the UDP socket on
// whatever port TCP ended up with.
func (t *Transport) bind() (*tcp.TCPTransport, *udp.UDPTransport, error) {
	stream := tcp.NewTCPTransport(net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err := stream.ListenAndAccept(); err != nil {
		return nil, nil, fmt.Errorf("bind tcp port %d: %w", t.port, err)
	}
	port := stream.Port()

	dgram := udp.NewUDPTransport(net.JoinHostPort(t.host, strconv.Itoa(port)))
	if err := listenUDP(dgram); err != nil {
		_ = stream.Close()
		return nil, nil, fmt.Errorf("bind udp port %d: %w", port, err)
	}
	return stream, dgram, nil
}

// Stop closes both sockets, which unblocks and ends both receive loops.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running.Swap(false) {
		return nil
	}
	err := multierr.Combine(t.tcp.Close(), t.udp.Close())
	logger.Sugar.Infof("[Transport] stopped: port=%d", t.port)
	return err
}

func (t *Transport) Running() bool {
	return t.running.Load()
}

func (t *Transport) Port() int {
	return t.port
}

// Accepted returns nil before Start.
func (t *Transport) Accepted() <-chan net.Conn {
	if t.tcp == nil {
		return nil
	}
	return t.tcp.Accepted()
}

// Datagrams returns nil before Start.
func (t *Transport) Datagrams() <-chan transport.Datagram {
	if t.udp == nil {
		return nil
	}
	return t.udp.Datagrams()
}

func (t *Transport) SendDatagram(to *net.UDPAddr, b []byte) error {
	if !t.running.Load() {
		return transport.ErrNotStarted
	}
	return t.udp.Send(to, b)
}

// DroppedDatagrams counts datagrams dropped because the consumer fell behind.
func (t *Transport) DroppedDatagrams() int64 {
	if t.udp == nil {
		return 0
	}
	return t.udp.Dropped()
}
