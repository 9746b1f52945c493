// Package membership keeps the set of known peers and when each was last heard from.
package membership

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"p2p-nebula/nebula/pkg/protocol"
)

// Table maps peer addresses to last-seen timestamps. All methods are safe for
// concurrent use; every mutation happens under one table-wide lock.
type Table struct {
	mu       sync.RWMutex
	selfPort uint16
	clock    clock.Clock
	peers    map[protocol.PeerAddress]time.Time
}

type Option func(*Table)

// WithClock replaces the wall clock, e.g. with clock.NewMock in tests.
func WithClock(c clock.Clock) Option {
	return func(t *Table) { t.clock = c }
}

// NewTable creates an empty table for a node listening on selfPort. Peers
// declaring that port are never inserted.
func NewTable(selfPort uint16, opts ...Option) *Table {
	t := &Table{
		selfPort: selfPort,
		clock:    clock.New(),
		peers:    make(map[protocol.PeerAddress]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Upsert inserts peer or refreshes its timestamp. It reports whether the
// peer was new.
func (t *Table) Upsert(peer protocol.PeerAddress) bool {
	return t.see(peer)
}

// Touch marks peer as seen now, inserting it when absent.
func (t *Table) Touch(peer protocol.PeerAddress) {
	t.see(peer)
}

func (t *Table) see(peer protocol.PeerAddress) bool {
	if !peer.IsValid() || peer.Port == t.selfPort {
		return false
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	_, known := t.peers[peer]
	t.peers[peer] = now
	return !known
}

// EvictOlderThan removes and returns every peer last seen more than d ago.
func (t *Table) EvictOlderThan(d time.Duration) []protocol.PeerAddress {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	var evicted []protocol.PeerAddress
	for peer, seen := range t.peers {
		if now.Sub(seen) > d {
			delete(t.peers, peer)
			evicted = append(evicted, peer)
		}
	}
	sortPeers(evicted)
	return evicted
}

// Snapshot returns a sorted copy of all known peers.
func (t *Table) Snapshot() []protocol.PeerAddress {
	t.mu.RLock()
	out := make([]protocol.PeerAddress, 0, len(t.peers))
	for peer := range t.peers {
		out = append(out, peer)
	}
	t.mu.RUnlock()

	sortPeers(out)
	return out
}

func (t *Table) LastSeen(peer protocol.PeerAddress) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen, ok := t.peers[peer]
	return seen, ok
}

func (t *Table) Contains(peer protocol.PeerAddress) bool {
	_, ok := t.LastSeen(peer)
	return ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

func (t *Table) SelfPort() uint16 {
	return t.selfPort
}

func sortPeers(peers []protocol.PeerAddress) {
	sort.Slice(peers, func(i, j int) bool {
		if c := peers[i].IP.Compare(peers[j].IP); c != 0 {
			return c < 0
		}
		return peers[i].Port < peers[j].Port
	})
}
