package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"docucloud.org/internal/auth"
	"docucloud.org/internal/blob"
	"docucloud.org/internal/config"
	"docucloud.org/internal/httpapi"
	"docucloud.org/internal/mail"
	"docucloud.org/internal/obs"
	"docucloud.org/internal/share"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Without a DSN the service runs on in-memory stores. Useful for local
	// development; state does not survive a restart.
	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		authStore  auth.Store
		shareStore share.Store
		docStore   share.DocumentStore
	)
	if db != nil {
		authStore = auth.NewPGStore(db)
		shareStore = share.NewPGStore(db)
		docStore = share.NewPGDocumentStore(db)
	} else {
		authStore = auth.NewMemoryStore()
		shareStore = share.NewMemoryStore()
		docStore = share.NewMemoryDocumentStore()
	}

	codec, err := auth.NewCodec(cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTokenTTL(cfg.AccessTTL),
		auth.WithRefreshTokenTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	presigner, err := blob.NewLocalPresigner(cfg.PresignBase, cfg.PresignSecret)
	if err != nil {
		log.Fatalf("presigner: %v", err)
	}

	sessions := auth.NewService(authStore, codec)
	resets := auth.NewResetService(authStore, mail.LogMailer{}, cfg.ResetURL,
		auth.WithResetTTL(cfg.ResetTTL))
	gate := share.NewGate(shareStore, docStore, presigner, cfg.BaseURL,
		share.WithPresignTTL(cfg.PresignTTL))

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, sessions, resets, gate,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting docucloud-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
