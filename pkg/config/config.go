// Package config holds the node settings shared by the CLI and the node package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"p2p-nebula/nebula/pkg/protocol"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Environment variables read by ApplyEnv.
const (
	EnvPort        = "NEBULA_PORT"
	EnvBootstrap   = "NEBULA_BOOTSTRAP"
	EnvDataDir     = "NEBULA_DATA_DIR"
	EnvIOTimeout   = "NEBULA_IO_TIMEOUT"
	EnvWorkers     = "NEBULA_WORKERS"
	EnvMDNS        = "NEBULA_MDNS"
	EnvMetricsAddr = "NEBULA_METRICS_ADDR"
)

type Config struct {
	// Port is the shared TCP/UDP port. Zero lets the OS choose.
	Port int
	// Bootstrap is an optional "ip:port" of a node to introduce ourselves to.
	Bootstrap string

	BaseDir  string
	LogDir   string
	LogLevel string

	Workers int
	// QueueSize caps connections waiting for a free worker. Zero leaves the
	// queue unbounded, so nothing is shed.
	QueueSize int

	MaintenanceInterval time.Duration
	InactivityTimeout   time.Duration
	// IOTimeout bounds each read or write on a transfer connection. Zero
	// disables it, which matches the wire protocol's historical behaviour.
	IOTimeout   time.Duration
	DialTimeout time.Duration

	VerifyDownloads bool

	EnableMDNS    bool
	AdvertiseMDNS bool

	MetricsAddr        string
	MetricsLogInterval time.Duration
}

func Default() *Config {
	return &Config{
		BaseDir:             ".",
		LogDir:              "logs",
		Workers:             16,
		QueueSize:           256,
		MaintenanceInterval: 30 * time.Second,
		InactivityTimeout:   5 * time.Minute,
		VerifyDownloads:     true,
	}
}

// ApplyEnv overlays values from the environment. Unset variables leave the
// current value alone; unparsable ones are reported.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvPort, v)
		}
		c.Port = n
	}
	if v, ok := lookup(EnvBootstrap); ok {
		c.Bootstrap = v
	}
	if v, ok := lookup(EnvDataDir); ok {
		c.BaseDir = v
	}
	if v, ok := lookup(EnvIOTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvIOTimeout, v, err)
		}
		c.IOTimeout = d
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvWorkers, v)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvMDNS); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvMDNS, v)
		}
		c.EnableMDNS = b
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Validate checks ranges and the bootstrap address.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Bootstrap != "" {
		if _, err := protocol.ParsePeerAddress(c.Bootstrap); err != nil {
			return fmt.Errorf("%w: bootstrap: %v", ErrInvalid, err)
		}
	}
	if c.BaseDir == "" {
		return fmt.Errorf("%w: empty base dir", ErrInvalid)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: negative queue size %d", ErrInvalid, c.QueueSize)
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("%w: maintenance interval must be positive", ErrInvalid)
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: inactivity timeout must be positive", ErrInvalid)
	}
	if c.IOTimeout < 0 || c.DialTimeout < 0 || c.MetricsLogInterval < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	return nil
}

// BootstrapAddr returns the parsed bootstrap address, if one is configured.
func (c *Config) BootstrapAddr() (protocol.PeerAddress, bool) {
	if c.Bootstrap == "" {
		return protocol.PeerAddress{}, false
	}
	addr, err := protocol.ParsePeerAddress(c.Bootstrap)
	if err != nil {
		return protocol.PeerAddress{}, false
	}
	return addr, true
}
