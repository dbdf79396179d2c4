package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/franquia-labs/cardsettle/internal/app"
	"github.com/franquia-labs/cardsettle/internal/config"
	"github.com/franquia-labs/cardsettle/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", errLoad)
		os.Exit(1)
	}
	logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var errRun error
	switch command {
	case "serve":
		errRun = app.RunServer(ctx, *configPath)
	case "migrate":
		errRun = app.Migrate(ctx, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, expected serve or migrate\n", command)
		os.Exit(2)
	}
	if errRun != nil {
		log.WithError(errRun).Fatalf("%s failed", command)
	}
}
