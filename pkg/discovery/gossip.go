package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/membership"
	"p2p-nebula/nebula/pkg/monitor"
	"p2p-nebula/nebula/pkg/protocol"
	"p2p-nebula/nebula/pkg/transport"
)

const (
	DefaultMaintenanceInterval = 30 * time.Second
	DefaultInactivityTimeout   = 5 * time.Minute
)

// Sender is the outbound half of the datagram transport.
type Sender interface {
	SendDatagram(to *net.UDPAddr, b []byte) error
}

// Gossip runs the UDP membership protocol: bootstrap registration, periodic
// pings, peer list exchange and inactivity eviction.
type Gossip struct {
	port     uint16
	table    *membership.Table
	sender   Sender
	metrics  *monitor.Metrics
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
}

type Option func(*Gossip)

func WithClock(c clock.Clock) Option {
	return func(g *Gossip) { g.clock = c }
}

func WithMaintenanceInterval(d time.Duration) Option {
	return func(g *Gossip) {
		if d > 0 {
			g.interval = d
		}
	}
}

func WithInactivityTimeout(d time.Duration) Option {
	return func(g *Gossip) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGossip creates the protocol for a node whose TCP port is port.
func NewGossip(port uint16, table *membership.Table, sender Sender, metrics *monitor.Metrics, opts ...Option) *Gossip {
	g := &Gossip{
		port:     port,
		table:    table,
		sender:   sender,
		metrics:  metrics,
		clock:    clock.New(),
		interval: DefaultMaintenanceInterval,
		timeout:  DefaultInactivityTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Introduce announces this node to addr and asks it for its peers. addr is
// remembered as a peer; if it never answers it is evicted like any other.
func (g *Gossip) Introduce(addr protocol.PeerAddress) error {
	if err := g.send(addr.UDPAddr(), protocol.Register(g.port)); err != nil {
		return fmt.Errorf("register with %s: %w", addr, err)
	}
	if err := g.send(addr.UDPAddr(), protocol.RequestPeers(g.port)); err != nil {
		return fmt.Errorf("request peers from %s: %w", addr, err)
	}
	g.table.Upsert(addr)
	logger.Sugar.Infof("[Gossip] introduced to bootstrap: addr=%s", addr)
	return nil
}

// HandleDatagram applies one inbound datagram. Malformed payloads are logged
// and dropped.
func (g *Gossip) HandleDatagram(d transport.Datagram) {
	msg, err := protocol.ParseGossip(d.Payload)
	if err != nil {
		g.metrics.MalformedMessages.WithLabelValues("udp").Inc()
		logger.Sugar.Warnf("[Gossip] dropping malformed datagram: from=%s err=%v", d.From, err)
		return
	}
	g.metrics.DatagramsReceived.WithLabelValues(string(msg.Kind)).Inc()

	// The declared port, not the UDP source port, identifies the peer.
	var sender protocol.PeerAddress
	if msg.HasDeclaredPort() {
		sender, err = protocol.PeerFromUDP(d.From, msg.Port)
		if err != nil {
			g.metrics.MalformedMessages.WithLabelValues("udp").Inc()
			logger.Sugar.Warnf("[Gossip] dropping datagram with bad sender: from=%s err=%v", d.From, err)
			return
		}
	}

	switch msg.Kind {
	case protocol.KindPing:
		g.learn(sender, "ping")

	case protocol.KindRegister:
		g.learn(sender, "register")
		g.replyPeers(d.From, sender)

	case protocol.KindPeers:
		for _, p := range msg.Peers {
			g.learn(p, "peers")
		}

	case protocol.KindRequestPeers:
		g.replyPeers(d.From, sender)
	}

	if msg.HasDeclaredPort() {
		g.table.Touch(sender)
	}
}

func (g *Gossip) learn(p protocol.PeerAddress, via string) {
	if g.table.Upsert(p) {
		logger.Sugar.Infof("[Gossip] new peer: addr=%s via=%s", p, via)
	}
}

// replyPeers sends every known peer except requester back to the datagram's
// source. Nothing is sent when the list would be empty.
func (g *Gossip) replyPeers(to *net.UDPAddr, requester protocol.PeerAddress) {
	known := g.table.Snapshot()
	peers := make([]protocol.PeerAddress, 0, len(known))
	for _, p := range known {
		if p != requester {
			peers = append(peers, p)
		}
	}
	if len(peers) == 0 {
		return
	}
	if err := g.send(to, protocol.Peers(peers)); err != nil {
		logger.Sugar.Warnf("[Gossip] peer list reply failed: to=%s err=%v", to, err)
	}
}

// Run performs a maintenance cycle immediately and then every interval until ctx is done.
func (g *Gossip) Run(ctx context.Context) {
	g.Maintain()

	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Maintain()
		}
	}
}

// Maintain pings every known peer and then evicts the inactive ones.
func (g *Gossip) Maintain() {
	ping := protocol.Ping(g.port)
	for _, p := range g.table.Snapshot() {
		if err := g.send(p.UDPAddr(), ping); err != nil {
			logger.Sugar.Debugf("[Gossip] ping failed: to=%s err=%v", p, err)
		}
	}

	evicted := g.table.EvictOlderThan(g.timeout)
	for _, p := range evicted {
		logger.Sugar.Infof("[Gossip] evicted inactive peer: addr=%s timeout=%s", p, g.timeout)
	}
	g.metrics.PeersEvicted.Add(float64(len(evicted)))
}

func (g *Gossip) send(to *net.UDPAddr, msg protocol.GossipMessage) error {
	if err := g.sender.SendDatagram(to, msg.Encode()); err != nil {
		return err
	}
	g.metrics.DatagramsSent.WithLabelValues(string(msg.Kind)).Inc()
	return nil
}
