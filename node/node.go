// Package node wires the transport, membership table, gossip protocol,
// transfer protocol and content store into one running peer.
package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"p2p-nebula/nebula/pkg/config"
	"p2p-nebula/nebula/pkg/discovery"
	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/membership"
	"p2p-nebula/nebula/pkg/monitor"
	"p2p-nebula/nebula/pkg/storage"
	"p2p-nebula/nebula/pkg/transfer"
	"p2p-nebula/nebula/pkg/transport/dual"
	"p2p-nebula/nebula/pkg/workerpool"
)

// MetricsNamespace prefixes every collector the node registers.
const MetricsNamespace = "nebula"

const poolShutdownTimeout = 5 * time.Second

var (
	ErrNotStarted     = errors.New("node not started")
	ErrAlreadyStarted = errors.New("node already started")
)

type Node struct {
	cfg   *config.Config
	clock clock.Clock

	transport *dual.Transport
	store     *storage.Store
	table     *membership.Table
	metrics   *monitor.Metrics
	gossip    *discovery.Gossip
	server    *transfer.Server
	client    *transfer.Client
	pool      *workerpool.Pool

	advertiser *discovery.Advertiser

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

type Option func(*Node)

// WithClock replaces the wall clock used for membership timestamps and the
// maintenance ticker.
func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// New validates cfg and prepares a node. Nothing is bound until Start.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		cfg:       cfg,
		clock:     clock.New(),
		transport: dual.New("", cfg.Port),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start binds the sockets, opens the store and launches the background
// loops. A bind failure is returned before any loop starts.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}

	if err := n.transport.Start(); err != nil {
		return err
	}
	port := n.transport.Port()

	store, err := storage.NewStore(n.cfg.BaseDir, port, storage.WithVerify(n.cfg.VerifyDownloads))
	if err != nil {
		_ = n.transport.Stop()
		return fmt.Errorf("open store: %w", err)
	}
	n.store = store

	n.table = membership.NewTable(uint16(port), membership.WithClock(n.clock))
	n.metrics = monitor.NewMetrics(MetricsNamespace)
	n.metrics.PeersGauge(MetricsNamespace, n.table.Len)
	n.metrics.DroppedGauge(MetricsNamespace, n.transport.DroppedDatagrams)

	n.gossip = discovery.NewGossip(uint16(port), n.table, n.transport, n.metrics,
		discovery.WithClock(n.clock),
		discovery.WithMaintenanceInterval(n.cfg.MaintenanceInterval),
		discovery.WithInactivityTimeout(n.cfg.InactivityTimeout),
	)
	n.server = transfer.NewServer(n.store, n.metrics, n.cfg.IOTimeout)
	n.client = transfer.NewClient(n.store, n.metrics, n.cfg.DialTimeout, n.cfg.IOTimeout)
	n.pool = workerpool.New("transfer", n.cfg.Workers, n.cfg.QueueSize)

	ctx, n.cancel = context.WithCancel(ctx)
	n.group, ctx = errgroup.WithContext(ctx)

	n.group.Go(n.acceptLoop)
	n.group.Go(n.datagramLoop)
	n.group.Go(func() error {
		n.gossip.Run(ctx)
		return nil
	})

	if addr, ok := n.cfg.BootstrapAddr(); ok {
		if err := n.gossip.Introduce(addr); err != nil {
			logger.Sugar.Warnf("[Node] bootstrap registration failed: addr=%s err=%v", addr, err)
		}
	}

	n.startMetrics(ctx)
	n.startMDNS(ctx, port)

	n.started = true
	logger.Sugar.Infof("[Node] started: port=%d dir=%s", port, n.store.Dir())
	return nil
}

// acceptLoop hands each inbound connection to the worker pool. A full pool
// closes the connection instead of blocking the accept loop.
func (n *Node) acceptLoop() error {
	for conn := range n.transport.Accepted() {
		n.metrics.ConnectionsAccepted.Inc()
		c := conn
		if err := n.pool.Submit(func() { n.server.Handle(c) }); err != nil {
			n.metrics.ConnectionsRejected.Inc()
			logger.Sugar.Warnf("[Node] rejecting connection: remote=%s err=%v", c.RemoteAddr(), err)
			_ = c.Close()
		}
	}
	return nil
}

func (n *Node) datagramLoop() error {
	for d := range n.transport.Datagrams() {
		n.gossip.HandleDatagram(d)
	}
	return nil
}

func (n *Node) startMetrics(ctx context.Context) {
	if addr := n.cfg.MetricsAddr; addr != "" {
		n.group.Go(func() error {
			if err := n.metrics.Serve(ctx, addr); err != nil {
				logger.Sugar.Errorf("[Node] metrics endpoint failed: addr=%s err=%v", addr, err)
			}
			return nil
		})
	}
	if interval := n.cfg.MetricsLogInterval; interval > 0 {
		n.group.Go(func() error {
			n.metrics.LogPeriodic(ctx, interval)
			return nil
		})
	}
}

func (n *Node) startMDNS(ctx context.Context, port int) {
	if n.cfg.AdvertiseMDNS {
		adv := discovery.NewAdvertiser()
		meta := map[string]string{"port": strconv.Itoa(port)}
		if err := adv.Start("", port, meta); err != nil {
			logger.Sugar.Warnf("[Node] mDNS advertise failed: err=%v", err)
		} else {
			n.advertiser = adv
		}
	}
	if !n.cfg.EnableMDNS {
		return
	}

	resolver, err := discovery.NewResolver()
	if err != nil {
		logger.Sugar.Warnf("[Node] mDNS browse unavailable: err=%v", err)
		return
	}
	found, err := resolver.Browse(ctx)
	if err != nil {
		logger.Sugar.Warnf("[Node] mDNS browse failed: err=%v", err)
		return
	}
	n.group.Go(func() error {
		n.gossip.IntroduceAll(found)
		return nil
	})
}

// Stop closes both sockets, waits for the background loops and drains the
// worker pool. It is safe to call more than once.
func (n *Node) Stop() error {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return nil
	}

	var err error
	n.stopOnce.Do(func() {
		n.cancel()
		err = multierr.Append(err, n.transport.Stop())
		if n.advertiser != nil {
			n.advertiser.Stop()
		}
		err = multierr.Append(err, n.group.Wait())
		err = multierr.Append(err, n.pool.ShutdownWithTimeout(poolShutdownTimeout))
		logger.Sugar.Infof("[Node] stopped: port=%d", n.transport.Port())
	})
	return err
}

// Port is the shared TCP/UDP port, valid after Start.
func (n *Node) Port() int {
	return n.transport.Port()
}

func (n *Node) Table() *membership.Table {
	return n.table
}

func (n *Node) Store() *storage.Store {
	return n.store
}

func (n *Node) Metrics() *monitor.Metrics {
	return n.metrics
}

func (n *Node) Gossip() *discovery.Gossip {
	return n.gossip
}

func (n *Node) PoolStats() workerpool.Stats {
	return n.pool.Stats()
}
