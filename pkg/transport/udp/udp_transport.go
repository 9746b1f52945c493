package udp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/transport"
)

// MaxDatagramSize is the receive buffer for one datagram.
const MaxDatagramSize = 64 * 1024

// UDPTransport owns the datagram socket and its receive loop. When the
// consumer falls behind, datagrams are dropped rather than blocking the loop.
type UDPTransport struct {
	listenAddr string
	conn       *net.UDPConn
	recvCh     chan transport.Datagram
	quitCh     chan struct{}
	closeOnce  sync.Once
	loopDone   chan struct{}
	dropped    atomic.Int64
}

func NewUDPTransport(addr string) *UDPTransport {
	return &UDPTransport{
		listenAddr: addr,
		recvCh:     make(chan transport.Datagram, 1024),
		quitCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

func (u *UDPTransport) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", u.listenAddr)
	if err != nil {
		return err
	}
	u.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	u.listenAddr = u.conn.LocalAddr().String()

	go u.readLoop()
	return nil
}

func (u *UDPTransport) readLoop() {
	defer close(u.loopDone)
	defer close(u.recvCh)

	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if u.closed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Sugar.Warnf("[UDPTransport] receive error: listen=%s err=%v", u.listenAddr, err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case u.recvCh <- transport.Datagram{Payload: payload, From: src}:
		case <-u.quitCh:
			return
		default:
			u.dropped.Add(1)
			logger.Sugar.Debugf("[UDPTransport] queue full, dropping datagram: from=%s", src)
		}
	}
}

func (u *UDPTransport) closed() bool {
	select {
	case <-u.quitCh:
		return true
	default:
		return false
	}
}

func (u *UDPTransport) Datagrams() <-chan transport.Datagram {
	return u.recvCh
}

// Dropped counts datagrams discarded because the queue was full.
func (u *UDPTransport) Dropped() int64 {
	return u.dropped.Load()
}

func (u *UDPTransport) Send(to *net.UDPAddr, b []byte) error {
	if u.conn == nil {
		return transport.ErrNotStarted
	}
	_, err := u.conn.WriteToUDP(b, to)
	return err
}

// Close stops the receive loop. It is safe to call more than once.
func (u *UDPTransport) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.quitCh)
		if u.conn == nil {
			close(u.recvCh)
			close(u.loopDone)
			return
		}
		err = u.conn.Close()
		<-u.loopDone
	})
	return err
}

func (u *UDPTransport) Addr() string {
	return u.listenAddr
}

func (u *UDPTransport) Port() int {
	if u.conn == nil {
		return 0
	}
	return u.conn.LocalAddr().(*net.UDPAddr).Port
}
