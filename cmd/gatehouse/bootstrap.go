package main

import (
	"fmt"
	"log"

	"gatehouse/internal/bootstrap"
	"gatehouse/internal/config"
	"gatehouse/internal/db"
	"gatehouse/internal/user"

	"github.com/spf13/cobra"
)

func bootstrapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "bootstrap",
		SilenceUsage: true,
		Short:        "create the configured roles and admin account, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			conn, err := db.Open(cfg)
			if err != nil {
				return fmt.Errorf("db init error: %w", err)
			}
			res, err := bootstrap.Provision(cmd.Context(), user.NewStore(conn), cfg)
			if err != nil {
				return err
			}
			log.Printf("[Main] roles created=%v found=%v admin created=%t",
				res.RolesCreated, res.RolesFound, res.AdminCreated)
			return nil
		},
	}
}
