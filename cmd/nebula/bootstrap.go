package main

import (
	"github.com/spf13/cobra"
)

var bootstrapInteractive bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap [port]",
	Short: "Start a well-known node that advertises itself with mDNS",
	Long: `Start a node meant to be used as other nodes' bootstrap address. It is a
regular node that also announces its port on the local network, so nodes
started with --mdns find it without being told the address.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyArgs(args); err != nil {
			return err
		}
		cfg.AdvertiseMDNS = true
		return runNode(cmd.Context(), bootstrapInteractive)
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bindFlags(bootstrapCmd.Flags())
	bootstrapCmd.Flags().BoolVarP(&bootstrapInteractive, "interactive", "i", false, "Start in interactive mode")
}
