package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/protocol"
)

const (
	// ServiceType defines the mDNS service type under which nodes announce their gossip port
	ServiceType = "_nebula._udp"
	// Domain is the local domain for mDNS
	Domain = "local."
)

// ServiceInfo contains information about a discovered service
type ServiceInfo struct {
	InstanceName string
	HostName     string
	Port         int
	IPs          []string
	Meta         map[string]string
}

// Peers converts the service into gossip addresses, one per IPv4 address.
func (s *ServiceInfo) Peers() []protocol.PeerAddress {
	var out []protocol.PeerAddress
	if s.Port <= 0 || s.Port > 65535 {
		return out
	}
	for _, ip := range s.IPs {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			continue
		}
		out = append(out, protocol.NewPeerAddress(addr, uint16(s.Port)))
	}
	return out
}

// Advertiser handles service broadcasting
type Advertiser struct {
	server *zeroconf.Server
}

// Resolver handles service discovery
type Resolver struct {
	resolver *zeroconf.Resolver
}

func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start begins broadcasting the node's port on the local network.
func (a *Advertiser) Start(instanceName string, port int, meta map[string]string) error {
	if instanceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceName = fmt.Sprintf("nebula-%d", port)
		} else {
			instanceName = fmt.Sprintf("nebula-%s-%d", hostname, port)
		}
	}

	var txtRecords []string
	for k, v := range meta {
		txtRecords = append(txtRecords, fmt.Sprintf("%s=%s", k, v))
	}

	server, err := zeroconf.Register(instanceName, ServiceType, Domain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	logger.Sugar.Infof("[Discovery] advertising: instance=%s port=%d", instanceName, port)
	return nil
}

// Stop stops broadcasting the service
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func NewResolver() (*Resolver, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return &Resolver{resolver: resolver}, nil
}

// Browse scans for services until the context is canceled
// It returns a channel that will receive discovered services
func (r *Resolver) Browse(ctx context.Context) (<-chan *ServiceInfo, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan *ServiceInfo, 10)

	if err := r.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				info := &ServiceInfo{
					InstanceName: entry.Instance,
					HostName:     entry.HostName,
					Port:         entry.Port,
					IPs:          make([]string, 0, len(entry.AddrIPv4)),
					Meta:         make(map[string]string),
				}
				for _, ip := range entry.AddrIPv4 {
					info.IPs = append(info.IPs, ip.String())
				}
				for _, record := range entry.Text {
					if k, v, ok := strings.Cut(record, "="); ok {
						info.Meta[k] = v
					}
				}

				if len(info.IPs) > 0 {
					logger.Sugar.Infof("[Discovery] discovered service: instance=%s ips=%v port=%d", info.InstanceName, info.IPs, info.Port)
					select {
					case results <- info:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return results, nil
}

// IntroduceAll introduces g to every node announced on found until the
// channel closes. The node's own port is skipped.
func (g *Gossip) IntroduceAll(found <-chan *ServiceInfo) {
	for info := range found {
		for _, p := range info.Peers() {
			if p.Port == g.port {
				continue
			}
			if err := g.Introduce(p); err != nil {
				logger.Sugar.Warnf("[Discovery] introduction failed: addr=%s err=%v", p, err)
			}
		}
	}
}
