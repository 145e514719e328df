package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qa-portal/internal/config"
	"qa-portal/internal/database"
	"qa-portal/internal/repository/memory"
	"qa-portal/internal/repository/postgres"
	"qa-portal/internal/router"
	"qa-portal/internal/service"
	"qa-portal/pkg/logger"
)

func main() {
	// config + logger
	cfg := config.Load()
	l := logger.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		l.Fatal().Err(err).Msg("invalid config")
	}

	// storage
	var deps router.Deps
	switch cfg.Store {
	case config.StoreMemory:
		s := memory.New()
		deps = router.Deps{NCPs: s.NCPs(), Users: s.Users(), Notifications: s.Notifications(), Audit: s.Audit()}
		l.Warn().Msg("using in-memory store, data is lost on exit")
	default:
		pool, err := database.Open(context.Background(), cfg)
		if err != nil {
			l.Fatal().Err(err).Msg("db connect failed")
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := database.Migrate(context.Background(), pool); err != nil {
				l.Fatal().Err(err).Msg("db migrate failed")
			}
		}
		deps = router.Deps{
			NCPs:          postgres.NewNCPRepo(pool),
			Users:         postgres.NewUserRepo(pool),
			Notifications: postgres.NewNotificationRepo(pool),
			Audit:         postgres.NewAuditRepo(pool),
		}
	}

	auth := service.NewAuthService(deps.Users, cfg.Secret())
	if created, err := auth.EnsureSuperAdmin(context.Background(), cfg.SeedPassword); err != nil {
		l.Fatal().Err(err).Msg("seed super admin failed")
	} else if created {
		l.Info().Str("username", service.SuperAdminUsername).Msg("seeded super admin")
	}

	// http
	r := router.New(l, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		l.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	l.Info().Msg("shutdown complete")
}
