package udp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-nebula/nebula/pkg/transport"
)

func listen(t *testing.T) *UDPTransport {
	t.Helper()
	u := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, u.Listen())
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func dialer(t *testing.T, u *UDPTransport) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: u.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestReceive(t *testing.T) {
	u := listen(t)
	conn := dialer(t, u)

	_, err := conn.Write([]byte("REGISTER:9001"))
	require.NoError(t, err)

	select {
	case d := <-u.Datagrams():
		assert.Equal(t, "REGISTER:9001", string(d.Payload))
		assert.Equal(t, conn.LocalAddr().(*net.UDPAddr).Port, d.From.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("no datagram received")
	}
}

func TestSend(t *testing.T) {
	a := listen(t)
	b := listen(t)

	require.NoError(t, a.Send(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: b.Port()}, []byte("PING:1")))
	select {
	case d := <-b.Datagrams():
		assert.Equal(t, "PING:1", string(d.Payload))
		assert.Equal(t, a.Port(), d.From.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("no datagram received")
	}
}

func TestDropsWhenQueueFull(t *testing.T) {
	u := listen(t)
	conn := dialer(t, u)

	// Nobody reads Datagrams, so the queue fills and further datagrams are
	// counted as dropped. Each send waits until the loop has dealt with it
	// so the kernel buffer never overflows first.
	handled := func() int64 { return int64(len(u.recvCh)) + u.Dropped() }
	for i := 0; i < 2*cap(u.recvCh) && u.Dropped() == 0; i++ {
		before := handled()
		_, err := conn.Write([]byte("PING:1"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return handled() > before }, 2*time.Second, time.Millisecond)
	}

	assert.Equal(t, int64(1), u.Dropped())
	assert.Equal(t, cap(u.recvCh), len(u.recvCh))

	d := <-u.Datagrams()
	assert.Equal(t, "PING:1", string(d.Payload))
}

func TestCloseEndsLoop(t *testing.T) {
	u := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, u.Listen())

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())

	for range u.Datagrams() {
	}
}

func TestSendBeforeListen(t *testing.T) {
	u := NewUDPTransport("127.0.0.1:0")
	err := u.Send(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, []byte("x"))
	assert.ErrorIs(t, err, transport.ErrNotStarted)
	assert.Zero(t, u.Port())
	require.NoError(t, u.Close())
}
