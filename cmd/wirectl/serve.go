package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/wirelink/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		admin      string
		plaintext  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept sessions and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = admin
			}
			if plaintext {
				cfg.Session.Encryption = false
			}

			reg := server.NewRegistry()
			table, err := server.NewTable(reg)
			if err != nil {
				return err
			}
			srv := server.New(cfg.Server(), table, reg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().Str("version", version).Msg("wirectl serve starting")
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config")
	cmd.Flags().StringVar(&listen, "listen", "", "Session listen address")
	cmd.Flags().StringVar(&admin, "admin", "", "Admin API address, empty disables it")
	cmd.Flags().BoolVar(&plaintext, "plaintext", false, "Disable frame encryption")

	return cmd
}
