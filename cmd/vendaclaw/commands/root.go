// Package commands implements the VendaClaw CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vendaclaw",
		Short: "VendaClaw - WhatsApp sales auto-reply assistant",
		Long: `VendaClaw answers your customers on WhatsApp while you are busy.
It buffers rapid-fire messages, generates one coherent reply per burst
and either sends it paced like a human or parks it as a draft for review.

Exemplos:
  vendaclaw serve
  vendaclaw chat "vocês têm entrega hoje?"
  vendaclaw drafts list
  vendaclaw config set-key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
		newChatCmd(),
		newDraftsCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
