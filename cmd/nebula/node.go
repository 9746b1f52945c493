package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"p2p-nebula/nebula/node"
	"p2p-nebula/nebula/pkg/logger"
)

var headless bool

var nodeCmd = &cobra.Command{
	Use:   "node [port] [bootstrap ip:port]",
	Short: "Start a node with an interactive shell",
	Long: `Start a node. The port is shared by TCP and UDP; omit it or pass 0 to let
the OS pick one. The optional bootstrap address is registered with on start.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyArgs(args); err != nil {
			return err
		}
		return runNode(cmd.Context(), !headless)
	},
}

func applyArgs(args []string) error {
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		cfg.Bootstrap = args[1]
	}
	return nil
}

// runNode starts a node and blocks until the shell exits or a signal arrives.
func runNode(ctx context.Context, interactive bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Sugar.Warnf("[CLI] shutdown: %v", err)
		}
	}()

	fmt.Printf("Node listening on port %d, storing files in %s\n", n.Port(), n.Store().Dir())
	if !interactive {
		<-ctx.Done()
		return nil
	}

	newShell(ctx, n).Run()
	return nil
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	bindFlags(nodeCmd.Flags())
	nodeCmd.Flags().BoolVar(&headless, "headless", false, "Run without the interactive shell")
}
