package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"p2p-nebula/nebula/pkg/config"
	"p2p-nebula/nebula/pkg/logger"
)

var (
	cfg    = config.Default()
	envErr = cfg.ApplyEnv()
)

var noVerify bool

var rootCmd = &cobra.Command{
	Use:   "nebula",
	Short: "Nebula P2P file sharing node",
	Long: `Nebula is a decentralised file sharing node. Peers find each other by UDP
gossip, seeded from an optional bootstrap address or mDNS, and exchange
content-addressed files over TCP on the same port.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		cfg.VerifyDownloads = !noVerify
		return logger.Setup(cfg.LogDir, cfg.LogLevel)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}

// bindFlags registers the settings shared by every node command. Values
// already taken from the environment become the flag defaults.
func bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.BaseDir, "data-dir", cfg.BaseDir, "Directory that holds the Node_<port>_Files store")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for nebula.log")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent transfer handlers")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Connections allowed to wait for a handler (0 = unbounded)")
	fs.DurationVar(&cfg.MaintenanceInterval, "ping-interval", cfg.MaintenanceInterval, "Gossip maintenance period")
	fs.DurationVar(&cfg.InactivityTimeout, "peer-timeout", cfg.InactivityTimeout, "Evict peers silent for longer than this")
	fs.DurationVar(&cfg.IOTimeout, "io-timeout", cfg.IOTimeout, "Per read/write timeout on transfer connections (0 disables)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for connecting to a peer (0 uses the OS default)")
	fs.BoolVar(&noVerify, "no-verify", false, "Accept downloads whose digest does not match the requested id")
	fs.BoolVar(&cfg.EnableMDNS, "mdns", cfg.EnableMDNS, "Find peers on the local network with mDNS")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve prometheus metrics on this address")
	fs.DurationVar(&cfg.MetricsLogInterval, "metrics-log", cfg.MetricsLogInterval, "Log runtime stats at this interval (0 disables)")
}
