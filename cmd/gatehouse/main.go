package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
}

func rootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:          "gatehouse [command]",
		SilenceUsage: true,
		Short:        "gatehouse is a web app with accounts, roles and an admin panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.json", "path to the JSON config file")
	cmd.AddCommand(serveCmd(&opts), bootstrapCmd(&opts))
	return cmd
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
