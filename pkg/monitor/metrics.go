package monitor

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"p2p-nebula/nebula/pkg/logger"
)

// Direction labels for transfer metrics.
const (
	Served  = "served"
	Fetched = "fetched"
)

// Metrics holds the node's prometheus collectors. Each node owns a registry
// so several nodes can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	DatagramsReceived *prometheus.CounterVec
	DatagramsSent     *prometheus.CounterVec
	MalformedMessages *prometheus.CounterVec
	PeersEvicted      prometheus.Counter

	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	Requests            *prometheus.CounterVec
	Searches            *prometheus.CounterVec

	TransferBytes    *prometheus.CounterVec
	TransferCount    *prometheus.CounterVec
	TransferDuration *prometheus.HistogramVec

	start time.Time
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		DatagramsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_datagrams_received_total",
			Help:      "Gossip datagrams received, by message kind",
		}, []string{"kind"}),
		DatagramsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_datagrams_sent_total",
			Help:      "Gossip datagrams sent, by message kind",
		}, []string{"kind"}),
		MalformedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Messages dropped because they could not be parsed",
		}, []string{"transport"}),
		PeersEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_evicted_total",
			Help:      "Peers removed after the inactivity timeout",
		}),

		ConnectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Inbound stream connections handed to the worker pool",
		}),
		ConnectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Inbound stream connections closed because the worker pool was full",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_requests_total",
			Help:      "Inbound transfer requests, by command and result",
		}, []string{"command", "result"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Outbound searches, by result",
		}, []string{"result"}),

		TransferBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "File bytes streamed, by direction",
		}, []string{"direction"}),
		TransferCount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Completed file transfers, by direction",
		}, []string{"direction"}),
		TransferDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Whole-file transfer duration",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}, []string{"direction"}),

		start: time.Now(),
	}
}

// PeersGauge exposes a live peer count read from fn on every scrape.
func (m *Metrics) PeersGauge(namespace string, fn func() int) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "known_peers",
		Help:      "Peers currently in the membership table",
	}, func() float64 { return float64(fn()) })
}

// DroppedGauge exposes the number of datagrams the transport discarded
// because the receive queue was full.
func (m *Metrics) DroppedGauge(namespace string, fn func() int64) {
	promauto.With(m.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gossip_datagrams_dropped",
		Help:      "Datagrams dropped by the transport receive queue",
	}, func() float64 { return float64(fn()) })
}

// RecordTransfer records a completed transfer and logs its speed.
func (m *Metrics) RecordTransfer(direction string, bytes int64, elapsed time.Duration) {
	m.TransferBytes.WithLabelValues(direction).Add(float64(bytes))
	m.TransferCount.WithLabelValues(direction).Inc()
	m.TransferDuration.WithLabelValues(direction).Observe(elapsed.Seconds())

	var speed float64
	if s := elapsed.Seconds(); s > 0 {
		speed = float64(bytes) / s / 1024 / 1024
	}
	logger.Sugar.Infof("[Transfer] %s: size=%dB duration=%.2fs speed=%.2fMB/s", direction, bytes, elapsed.Seconds(), speed)
}

// LogPeriodic logs runtime figures every interval until ctx is done.
func (m *Metrics) LogPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)

			logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | HeapSys=%dMB | Uptime=%s",
				runtime.NumGoroutine(),
				ms.HeapAlloc/1024/1024,
				ms.HeapSys/1024/1024,
				time.Since(m.start).Truncate(time.Second),
			)
		}
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Sugar.Infof("[Metrics] serving prometheus metrics: addr=%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
