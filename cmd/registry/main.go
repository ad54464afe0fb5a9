// Command registry runs the cause registry HTTP service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/cause_registry/internal/app/runtime"
	"github.com/R3E-Network/cause_registry/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("REGISTRY_CONFIG"), "Path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("init application: %v", err)
	}

	runErr := app.Run(ctx)
	if err := app.Shutdown(context.Background()); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("run: %v", runErr)
	}
}
