package protocol

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGossip(t *testing.T) {
	tests := []struct {
		in   string
		want GossipMessage
	}{
		{"REGISTER:9001", Register(9001)},
		{"PING:9002", Ping(9002)},
		{"REQUEST_PEERS:9003\n", RequestPeers(9003)},
		{"PEERS:", GossipMessage{Kind: KindPeers}},
		{"PEERS:10.0.0.1:9001,127.0.0.1:9002", Peers([]PeerAddress{
			{IP: netip.MustParseAddr("10.0.0.1"), Port: 9001},
			{IP: netip.MustParseAddr("127.0.0.1"), Port: 9002},
		})},
		{"PEERS:[::1]:7000", Peers([]PeerAddress{{IP: netip.MustParseAddr("::1"), Port: 7000}})},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGossip([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGossipMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"PING",
		"PING:",
		"PING:abc",
		"PING:0",
		"PING:70000",
		"HELLO:9001",
		"PEERS:10.0.0.1",
		"PEERS:notanip:9001",
	} {
		_, err := ParseGossip([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestGossipEncode(t *testing.T) {
	assert.Equal(t, "REGISTER:9001", string(Register(9001).Encode()))
	assert.Equal(t, "PING:9001", string(Ping(9001).Encode()))
	assert.Equal(t, "REQUEST_PEERS:9001", string(RequestPeers(9001).Encode()))

	peers := []PeerAddress{
		NewPeerAddress(netip.MustParseAddr("10.0.0.1"), 1),
		NewPeerAddress(netip.MustParseAddr("::ffff:10.0.0.2"), 2),
	}
	assert.Equal(t, "PEERS:10.0.0.1:1,10.0.0.2:2", string(Peers(peers).Encode()))

	assert.False(t, Peers(peers).HasDeclaredPort())
	assert.True(t, Ping(1).HasDeclaredPort())
}

func TestPeerFromUDP(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 55555}
	p, err := PeerFromUDP(sender, 9001)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", p.String())

	// net.ParseIP yields a 16-byte slice; the peer must still equal a parsed v4 address.
	q, err := ParsePeerAddress("127.0.0.1:9001")
	require.NoError(t, err)
	assert.Equal(t, q, p)
	assert.Equal(t, 9001, p.UDPAddr().Port)
}

func TestParseRequest(t *testing.T) {
	r, err := ParseRequest("SEARCH:abc\n")
	require.NoError(t, err)
	assert.Equal(t, Search("abc"), r)

	r, err = ParseRequest("REQUEST:abc:f.txt")
	require.NoError(t, err)
	assert.Equal(t, Fetch("abc", "f.txt"), r)

	r, err = ParseRequest("REQUEST:abc")
	require.NoError(t, err)
	assert.Equal(t, Fetch("abc", ""), r)

	for _, in := range []string{"", "SEARCH", "SEARCH:", "REQUEST::x", "DELETE:abc"} {
		_, err := ParseRequest(in)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestRequestEncode(t *testing.T) {
	assert.Equal(t, "SEARCH:abc\n", string(Search("abc").Encode()))
	assert.Equal(t, "REQUEST:abc:f.txt\n", string(Fetch("abc", "f.txt").Encode()))
}

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse("FOUND:abc")
	require.NoError(t, err)
	assert.Equal(t, Found("abc"), r)

	r, err = ParseResponse("NOT_FOUND\n")
	require.NoError(t, err)
	assert.Equal(t, NotFound(), r)

	r, err = ParseResponse("START:f.txt\n")
	require.NoError(t, err)
	assert.Equal(t, Start("f.txt"), r)

	_, err = ParseResponse("garbage")
	assert.ErrorIs(t, err, ErrMalformed)

	assert.Equal(t, "NOT_FOUND\n", string(NotFound().Encode()))
	assert.Equal(t, "FOUND:abc\n", string(Found("abc").Encode()))
}
