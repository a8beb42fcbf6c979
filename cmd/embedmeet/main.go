package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/embedmeet/embedmeet/pkg/config"
	"github.com/embedmeet/embedmeet/pkg/controller"
	"github.com/embedmeet/embedmeet/pkg/events"
	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/server"
	"github.com/embedmeet/embedmeet/pkg/widget/remote"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Initialize logger
	log.Init(cfg.LogLevel)
	log.Info("Starting server...")

	// Create components
	bus := events.NewBus()
	registry := remote.NewRegistry()
	manager := controller.NewManager(cfg, registry, registry, bus)

	wsServer := server.NewWebSocketServer(bus, registry, cfg)
	httpServer := server.NewHTTPServer(manager, wsServer)

	// Start HTTP server in a goroutine
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpServer,
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	waitForShutdown(srv, manager, bus)
}

func waitForShutdown(srv *http.Server, manager *controller.Manager, bus *events.Bus) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received
	<-stop

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown sessions first so clients see the final state events
	manager.Shutdown()
	log.Info("Session manager shut down successfully")

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Error during HTTP server shutdown: %v", err)
	} else {
		log.Info("HTTP server shut down successfully")
	}

	bus.Shutdown()

	log.Info("Server shutdown complete.")
}
