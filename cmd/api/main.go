package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "hotel_proxy/internal/adapters/http_server"
	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/adapters/razorpay"
	redisad "hotel_proxy/internal/adapters/redis"
	"hotel_proxy/internal/adapters/tbo"
	"hotel_proxy/internal/app"
	"hotel_proxy/internal/search"
	"hotel_proxy/internal/shared"
	mysqlrepo "hotel_proxy/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, observability.MetricsHandler(reg))

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlrepo.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CacheNS)
	inv, err := tbo.New(cfg.TBOBase, cfg.TBOUser, cfg.TBOPass, cfg.TBORPS, tbo.WithAttempts(cfg.TBOAttempts))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize TBO client")
	}
	gw, err := razorpay.New(cfg.RazorpayBase, cfg.RazorpayKeyID, cfg.RazorpaySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Razorpay client")
	}

	writer := app.NewWriteBehind(cache, cfg.CacheWriteQueue, cfg.CacheWriteWorkers)
	cards := app.NewCardInfoService(inv, cache, writer, app.NewBatchLimiter(cfg.CardInfoBatchInterval), cfg.CardInfoBatchSize)
	catalog := app.NewCatalogService(inv, cache, writer, cards)
	payments := app.NewPaymentService(gw, inv, repo, gw.KeyID(), cfg.Currency)

	sessions := search.NewStore(app.SearchBackend{Catalog: catalog}, cfg.SearchChunkSize, cfg.SearchSessionTTL)
	go sessions.Run(ctx, time.Minute)

	// http
	srv := server.New(cfg.CORSOrigins)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Catalog:  catalog,
		Payments: payments,
		Sessions: sessions,
		AdminKey: cfg.AdminKey,
		Checks: map[string]func(context.Context) error{
			"mysql": repo.Ping,
			"redis": cache.Ping,
		},
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	// pending cache writes are flushed before the cache connection goes away
	writer.Close()
	if err := cache.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("db close failed")
	}
}
