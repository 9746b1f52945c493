package protocol

import (
	"strconv"
	"strings"
)

// Kind is the verb of a gossip datagram.
type Kind string

const (
	KindRegister     Kind = "REGISTER"
	KindPing         Kind = "PING"
	KindRequestPeers Kind = "REQUEST_PEERS"
	KindPeers        Kind = "PEERS"
)

// GossipMessage is one UDP discovery datagram. Port is set for REGISTER, PING
// and REQUEST_PEERS; Peers is set for PEERS.
type GossipMessage struct {
	Kind  Kind
	Port  uint16
	Peers []PeerAddress
}

func Register(port uint16) GossipMessage     { return GossipMessage{Kind: KindRegister, Port: port} }
func Ping(port uint16) GossipMessage         { return GossipMessage{Kind: KindPing, Port: port} }
func RequestPeers(port uint16) GossipMessage { return GossipMessage{Kind: KindRequestPeers, Port: port} }
func Peers(peers []PeerAddress) GossipMessage {
	return GossipMessage{Kind: KindPeers, Peers: peers}
}

// HasDeclaredPort reports whether the message names the sender's TCP port.
func (m GossipMessage) HasDeclaredPort() bool {
	return m.Kind != KindPeers && m.Port != 0
}

func (m GossipMessage) Encode() []byte {
	var sb strings.Builder
	sb.WriteString(string(m.Kind))
	sb.WriteByte(':')
	if m.Kind == KindPeers {
		for i, p := range m.Peers {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.String())
		}
	} else {
		sb.WriteString(strconv.Itoa(int(m.Port)))
	}
	return []byte(sb.String())
}

// ParseGossip decodes a datagram payload.
func ParseGossip(b []byte) (GossipMessage, error) {
	kind, rest, ok := splitKind(strings.TrimSpace(string(b)))
	if !ok {
		return GossipMessage{}, malformed("missing ':' in %q", truncate(string(b)))
	}

	switch Kind(kind) {
	case KindRegister, KindPing, KindRequestPeers:
		port, err := ParsePort(rest)
		if err != nil {
			return GossipMessage{}, err
		}
		return GossipMessage{Kind: Kind(kind), Port: port}, nil

	case KindPeers:
		msg := GossipMessage{Kind: KindPeers}
		for _, tok := range strings.Split(rest, ",") {
			if strings.TrimSpace(tok) == "" {
				continue
			}
			p, err := ParsePeerAddress(tok)
			if err != nil {
				return GossipMessage{}, err
			}
			msg.Peers = append(msg.Peers, p)
		}
		return msg, nil

	default:
		return GossipMessage{}, malformed("unknown kind %q", truncate(kind))
	}
}

func truncate(s string) string {
	const limit = 64
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
