// Command cantalabd runs the Cantalab pipeline daemon: the stage
// scheduler, the reaper, and the HTTP API for webhooks and intake.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/daemon"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewForDaemon(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}
	defer st.Close()

	d, err := daemon.New(ctx, cfg, st, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	logger.Info("cantalabd running", logging.String("api", d.Addr()))

	<-ctx.Done()
	logger.Info("cantalabd shutting down")
	d.Stop()
}
