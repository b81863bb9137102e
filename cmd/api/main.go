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
	"github.com/redis/go-redis/v9"

	"horizonsync.org/internal/audit"
	"horizonsync.org/internal/auth"
	"horizonsync.org/internal/config"
	"horizonsync.org/internal/httpapi"
	"horizonsync.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	// Without a database the service runs fully in memory, which is enough
	// for local development and smoke tests.
	var store auth.Store
	var sink audit.Sink
	if db != nil {
		store = auth.NewPGStore(db)
		sink = audit.NewPGSink(db)
	} else {
		store = auth.NewMemoryStore()
		obs.Warn("no DATABASE_URL, using in-memory store", nil)
	}

	events := audit.NewLogger(sink)
	defer events.Close()

	svc, err := auth.NewService(store, []byte(cfg.TokenSecret), cfg.TokenIssuer,
		auth.WithResolver(auth.NewResolver(store, cache)),
		auth.WithAuditor(events),
		auth.WithTOTPIssuer(cfg.TOTPIssuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL()),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL()),
		auth.WithMFAPendingTTL(cfg.MFAPendingTokenTTL()),
		auth.WithResetTTL(cfg.PasswordResetTTL()),
		auth.WithLockoutPolicy(cfg.LockoutThreshold, cfg.AccountLockoutDuration()),
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithSessionLimit(cfg.MaxSessionsPerUser),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, events, httpapi.ReadyProbe{DB: db}, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateBurst, cfg.RatePerSec)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting horizonsync-api %s on %s", version, srv.Addr)

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
	if cache != nil {
		_ = cache.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
