package transport

import (
	"errors"
	"net"
)

var ErrNotStarted = errors.New("transport not started")

// Datagram is one inbound UDP payload together with its sender.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Transport is a single facade over one stream listener and one datagram
// socket bound to the same port. Inbound events are delivered on channels
// that stay open until Stop.
type Transport interface {
	Start() error
	Stop() error
	Port() int
	Accepted() <-chan net.Conn
	Datagrams() <-chan Datagram
	SendDatagram(to *net.UDPAddr, b []byte) error
}
