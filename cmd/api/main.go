package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tuna.org/internal/auth"
	"tuna.org/internal/catalog"
	"tuna.org/internal/config"
	"tuna.org/internal/httpapi"
	"tuna.org/internal/ids"
	"tuna.org/internal/migrate"
	"tuna.org/internal/obs"
	"tuna.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("TUNA_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if cfg.MigrateOnBoot {
		mgr := migrate.NewManager(store.DB(), cfg.MigrationsDir)
		if err := mgr.Up(context.Background()); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	authSvc, err := auth.NewService(store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	catalogSvc, err := catalog.NewService(store, ids.New)
	if err != nil {
		log.Fatalf("catalog service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, authSvc, catalogSvc)

	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), cfg.RateBurst, cfg.RatePerSecond),
						cfg.MaxBodyBytes)))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting tuna-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
