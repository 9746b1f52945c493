package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"p2p-nebula/nebula/pkg/logger"
)

// TCPTransport owns the stream listener and its accept loop. Accepted
// connections are handed out on Accepted and owned by the receiver.
type TCPTransport struct {
	listenAddr string
	listener   net.Listener
	acceptCh   chan net.Conn
	quitCh     chan struct{}
	closeOnce  sync.Once
	loopDone   chan struct{}
}

func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{
		listenAddr: addr,
		acceptCh:   make(chan net.Conn, 64),
		quitCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// ListenAndAccept binds the listener and starts the accept loop. A bind
// failure is returned before any goroutine starts.
func (t *TCPTransport) ListenAndAccept() error {
	var err error
	t.listener, err = net.Listen("tcp", t.listenAddr)
	if err != nil {
		return err
	}
	t.listenAddr = t.listener.Addr().String()

	go t.acceptLoop()
	return nil
}

func (t *TCPTransport) acceptLoop() {
	defer close(t.loopDone)
	defer close(t.acceptCh)

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Sugar.Errorf("[TCPTransport] accept error: listen=%s err=%v", t.listenAddr, err)
			select {
			case <-t.quitCh:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		select {
		case t.acceptCh <- conn:
		case <-t.quitCh:
			_ = conn.Close()
			return
		}
	}
}

func (t *TCPTransport) closed() bool {
	select {
	case <-t.quitCh:
		return true
	default:
		return false
	}
}

func (t *TCPTransport) Accepted() <-chan net.Conn {
	return t.acceptCh
}

// Close stops the accept loop. It is safe to call more than once.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.quitCh)
		if t.listener == nil {
			close(t.acceptCh)
			close(t.loopDone)
			return
		}
		err = t.listener.Close()
		<-t.loopDone
	})
	return err
}

func (t *TCPTransport) Addr() string {
	return t.listenAddr
}

func (t *TCPTransport) Port() int {
	if t.listener == nil {
		return 0
	}
	return t.listener.Addr().(*net.TCPAddr).Port
}

// Dial opens a stream connection to addr. A zero timeout leaves the OS default in place.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}
