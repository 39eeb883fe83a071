// Command mirrord runs the GitHub API mirror's ingestion engine as a
// long-lived process. Adapted from wesm-argh's cmd/main.go: the same
// stdlib-flag configuration-path CLI shape, generalized from a one-shot
// "load config, sync, exit" invocation into a daemon that runs the
// Background Scheduler and Worker Pool until terminated.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jgwest/github-api-mirror/config"
	"github.com/jgwest/github-api-mirror/internal/engine"
	"github.com/jgwest/github-api-mirror/internal/upstream/ghgraphql"
	"github.com/jgwest/github-api-mirror/internal/worker"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatalf("loading configuration from %s", *configPath)
	}

	if cfg.FileLogDir != "" {
		if err := os.MkdirAll(cfg.FileLogDir, 0o755); err != nil {
			log.WithError(err).Warn("could not create file-log directory, continuing with stderr only")
		}
	}

	up := ghgraphql.New(cfg.Token)

	h, err := engine.New(cfg, up, worker.Filter{}, log)
	if err != nil {
		log.WithError(err).Fatal("constructing engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("received shutdown signal, draining in-flight work")
		cancel()
	}()

	startedAt := time.Now()
	log.WithField("organizations", len(cfg.Organizations)).
		WithField("users", len(cfg.Users)).
		WithField("individualRepos", len(cfg.IndividualRepos)).
		Info("starting ingestion engine")

	if err := h.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("engine run loop exited with error")
	}
	log.WithField("ran", humanize.Time(startedAt)).Info("shutdown complete")
}
