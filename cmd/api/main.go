package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/vincentgaul/VintScout/internal/api"
	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/pkg/logger"
	"github.com/vincentgaul/VintScout/internal/pkg/notify"
	"github.com/vincentgaul/VintScout/internal/pkg/ratelimit"
	"github.com/vincentgaul/VintScout/internal/pkg/scanlock"
	"github.com/vincentgaul/VintScout/internal/scanner"
	"github.com/vincentgaul/VintScout/internal/scheduler"
	"github.com/vincentgaul/VintScout/internal/storage"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// searcherPool adapts the per-country client pool to the scanner's view.
type searcherPool struct {
	pool *vinted.Pool
}

func (p searcherPool) ClientFor(ctx context.Context, countryCode string) (scanner.Searcher, error) {
	return p.pool.ClientFor(ctx, countryCode)
}

// catalogPool adapts the client pool to the API's brand/category lookups.
type catalogPool struct {
	pool *vinted.Pool
}

func (p catalogPool) Brands(ctx context.Context, countryCode, keyword string, limit int) ([]vinted.Brand, error) {
	client, err := p.pool.ClientFor(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	return client.SearchBrands(ctx, keyword, limit)
}

func (p catalogPool) Categories(ctx context.Context, countryCode string) ([]vinted.Category, error) {
	client, err := p.pool.ClientFor(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	return client.Categories(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		appLogger.Error("open mysql failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Alert{}, &model.SeenItem{}); err != nil {
		appLogger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Error("redis ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	alertStore := storage.NewAlertStore(db)
	ledger := storage.NewLedger(db)

	pool := vinted.NewPool(cfg.Vinted, appLogger)
	defer pool.Close()

	fanout := notify.NewFanout(appLogger, ledger,
		notify.NewEmailChannel(cfg.Email, appLogger),
		notify.NewTelegramChannel(cfg.Telegram, appLogger),
		notify.NewWebhookChannel(appLogger),
	)

	limiter := ratelimit.New(rdb, appLogger, "", cfg.Scanner.RateLimit, cfg.Scanner.RateBurst)
	locker := scanlock.New(rdb, cfg.Scanner.ScanLockTTL)

	sc := scanner.New(
		searcherPool{pool: pool},
		ledger,
		alertStore,
		fanout,
		limiter,
		cfg.Vinted.PageSize,
		appLogger,
	)

	sched := scheduler.New(alertStore, sc, locker, cfg.Scanner, appLogger)
	sched.Start(ctx)

	srv := api.NewServer(cfg, appLogger, db, rdb, sched, catalogPool{pool: pool})

	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	if err := sched.Stop(); err != nil {
		appLogger.Error("scheduler drain failed", slog.String("error", err.Error()))
	}

	if err := rdb.Close(); err != nil {
		appLogger.Error("close redis failed", slog.String("error", err.Error()))
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			appLogger.Error("close mysql failed", slog.String("error", err.Error()))
		}
	}
}
