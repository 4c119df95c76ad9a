package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/backend/cached"
	"github.com/mind-engage/mindengage-quiz/internal/backend/rest"
	"github.com/mind-engage/mindengage-quiz/internal/backend/sqlstore"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readiness := map[string]api.Pinger{}

	// --- data service ---
	var be backend.Client
	switch cfg.Mode {
	case config.ModeOnline:
		rc, err := rest.New(log, rest.Config{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout})
		if err != nil {
			log.Fatal("backend client", "error", err)
		}
		be = rc
		readiness["backend"] = rc
	default:
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := sqlstore.Open(octx, sqlstore.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
		}
		defer dbh.Close()
		store := sqlstore.NewStore(dbh, sqlstore.Driver(cfg.DBDriver))
		if err := store.EnsureSuperAdmin(ctx, cfg.SuperAdminUser, cfg.SuperAdminPass); err != nil {
			log.Fatal("bootstrap super-admin", "error", err)
		}
		be = store
		readiness["db"] = api.PingFunc(dbh.PingContext)
	}

	// --- catalog cache ---
	var cache cached.Cache = cached.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc, err := cached.NewRedisCache(ctx, cfg.RedisAddr, "mindengage-quiz:")
		if err != nil {
			log.Fatal("redis", "addr", cfg.RedisAddr, "error", err)
		}
		defer rc.Close()
		cache = rc
		readiness["redis"] = rc
	}
	be = cached.New(be, cache, cfg.CacheTTL, log)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatal("blob store", "error", err)
	}

	r := newRouter(deps{
		log:         log,
		backend:     be,
		auth:        auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
		registry:    quiz.NewRegistry(quiz.WithIdleTTL(cfg.SessionIdleTTL)),
		blobs:       bs,
		corsOrigins: cfg.CORSOrigins,
		readiness:   readiness,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "redis", cfg.RedisAddr != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server", "error", err)
	}
}
