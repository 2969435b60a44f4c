package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rentalctl",
		Short:         "Operator tooling for the boarding house rental backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(secretsCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(signWebhookCmd())

	return rootCmd
}
