package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/daemon"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewForDaemon(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			d, err := daemon.New(signalCtx, cfg, st, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			if err := d.Start(signalCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			logger.Info("cantalab daemon running", logging.String("api", d.Addr()))
			<-signalCtx.Done()
			logger.Info("cantalab daemon shutting down")
			d.Stop()
			return nil
		},
	}
}
