package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cartengine/internal/cart"
	"cartengine/internal/config"
	"cartengine/internal/db"
	"cartengine/internal/domain"
	"cartengine/internal/httpserver"
	voucherrepo "cartengine/internal/repository/voucher"
	anonymoussvc "cartengine/internal/service/anonymous"
	migrationsvc "cartengine/internal/service/migration"
	vouchersvc "cartengine/internal/service/voucher"
	"cartengine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()

	var (
		store      storage.Store
		vouchers   voucherrepo.Repository
		health     func(ctx context.Context) error
		closeStore func()
	)

	switch cfg.StorageDriver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			logger.Fatalf("connect to db: %v", err)
		}
		store = storage.NewPostgres(pool, storage.PostgresOptions{LockForUpdate: cfg.LockForUpdate})
		vouchers = voucherrepo.NewPostgres(pool)
		health = pool.Ping
		closeStore = pool.Close
	case "redis":
		client, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("connect to redis: %v", err)
		}
		store = storage.NewRedis(client, cfg.CacheTTL)
		vouchers = voucherrepo.NewMemory()
		health = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		closeStore = func() { client.Close() }
	case "memory":
		store = storage.NewMemory()
		vouchers = voucherrepo.NewMemory()
		health = func(context.Context) error { return nil }
		closeStore = func() {}
	default:
		logger.Fatalf("unknown storage driver %q", cfg.StorageDriver)
	}
	defer closeStore()

	dispatcher := domain.NewLogDispatcher(logger)
	carts := migrationsvc.New(store, dispatcher, cart.OptionsFromConfig(cfg), cfg.MergeStrategy, logger)
	voucherService := vouchersvc.New(vouchers)
	guestService := anonymoussvc.New()

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Carts:    carts,
		Vouchers: voucherService,
		Guests:   guestService,
		Health:   health,
		Format: domain.FormatContext{
			Currency:  cfg.DefaultCurrency,
			Precision: cfg.DefaultPrecision,
		},
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
