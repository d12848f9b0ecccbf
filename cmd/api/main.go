package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "staybook/internal/adapters/http_server"
	"staybook/internal/adapters/identity"
	"staybook/internal/adapters/observability"
	"staybook/internal/adapters/payment"
	redisad "staybook/internal/adapters/redis"
	"staybook/internal/app"
	"staybook/internal/shared"
	mysqlrepo "staybook/internal/storage/mysql"
	"staybook/internal/store"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cache := redisad.NewCache(rdb)
	bus := redisad.NewBus(rdb)
	repo := mysqlrepo.New(db, bus)

	auth := identity.New(cfg.AuthBase, cfg.AuthKey)
	pay, err := payment.New(cfg.PayBase, cfg.PayKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payment client")
	}

	st := store.New(repo, auth, cache)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	wf := app.NewBookingWorkflow(q, pay, st, cfg.Currency)
	tokens := server.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// warm the hotels view and keep it synchronized
	if err := st.LoadHotels(ctx); err != nil {
		log.Warn().Err(err).Msg("initial hotel load failed")
	}
	sub, err := st.SubscribeHotels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("hotel subscription unavailable")
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{St: st, Q: q, W: wf, Tokens: tokens})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	go func() {
		<-ctx.Done()
		if sub != nil {
			if err := sub.Close(); err != nil {
				log.Warn().Err(err).Msg("hotel subscription close failed")
			}
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("shutdown complete")
}
