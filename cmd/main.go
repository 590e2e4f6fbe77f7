package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwise1/safestreet/config"
	deps "github.com/bwise1/safestreet/internal/debs"
	api "github.com/bwise1/safestreet/internal/http/rest"
)

const (
	allowConnectionsAfterShutdown = 1 * time.Second
)

func main() {
	cfg := config.New()
	deps := deps.New(cfg)

	if cfg.RunMigrations {
		if err := deps.DB.Migrate(); err != nil {
			log.Panicln("failed to apply migrations", "error", err)
		}
	}

	a := api.New(cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	go deps.WebSocket.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server running on port %v ...", cfg.Port)
		if err := a.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-stopChan:
		log.Println("Request to shutdown server. Doing nothing for ", allowConnectionsAfterShutdown)
		<-time.After(allowConnectionsAfterShutdown)
	case err := <-serveErr:
		log.Printf("Server failed: %v", err)
	}

	log.Println("Shutting down server...")
	if err := a.Shutdown(); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	cancel()
	deps.Close()
	log.Println("Connections closed.")
}
