package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenyx-narrator/internal/api/scenes"
	"github.com/Vasu1712/scenyx-narrator/internal/auth"
	"github.com/Vasu1712/scenyx-narrator/internal/config"
	"github.com/Vasu1712/scenyx-narrator/internal/dice"
	"github.com/Vasu1712/scenyx-narrator/internal/fixtures"
	"github.com/Vasu1712/scenyx-narrator/internal/middleware"
	"github.com/Vasu1712/scenyx-narrator/internal/narration"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/memory"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/sqlite"
	"github.com/Vasu1712/scenyx-narrator/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SeedFile != "" {
		seed, err := fixtures.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := fixtures.Apply(ctx, store, seed); err != nil {
			return err
		}
	}

	authn, err := auth.NewAuthenticator(cfg.AuthSecret)
	if err != nil {
		return err
	}
	roller, err := dice.NewSeededRoller()
	if err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub()
	go hub.Run(hubCtx)

	var publisher narration.Publisher = hub
	if cfg.ValkeyAddr != "" {
		bus, err := ws.NewValkeyBus(cfg.ValkeyAddr, cfg.ValkeyChannelPrefix, hub)
		if err != nil {
			return err
		}
		defer bus.Close()
		go func() {
			if err := bus.Run(hubCtx); err != nil {
				log.Printf("[Hub] Valkey subscription ended: %v", err)
			}
		}()
		publisher = bus
		log.Printf("[Hub] Fanning out through valkey at %s", cfg.ValkeyAddr)
	}

	service := narration.NewService(store, publisher, roller)
	router := mux.NewRouter()
	scenes.RegisterSceneRoutes(router, scenes.NewSceneHandler(service, hub, cfg.AllowedOrigin))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.CORS(cfg.AllowedOrigin)(middleware.Authenticate(authn)(router)),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server started at %s (storage: %s)", cfg.HTTPAddr, cfg.Storage)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	// WebSocket connections are hijacked and outlive Shutdown; stopping the hub
	// closes them.
	stopHub()
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return memory.NewSceneStore(), nil
	}
}
