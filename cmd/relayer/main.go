package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/auction"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/graceful"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/relayer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := newConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	pgPool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to initialize Postgres pool: %v", err)
	}
	defer pgPool.Close()

	auctionStore := auction.NewPgStore(pgPool)
	if err := auctionStore.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate auction storage: %v", err)
	}
	swapStore := ledger.NewPgStore(pgPool)
	if err := swapStore.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate swap storage: %v", err)
	}

	engine := auction.NewEngine(logger, auctionStore)

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer queue.Close()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metricsServer := metrics.NewServer(cfg.MetricsPort, reg)
	metricsServer.Start(logger)

	srv := relayer.NewServer(logger, engine, swapStore, queue)

	go func() {
		sig := <-graceful.MakeSigintChan()
		logger.Infof("received exit signal: %v", sig)
		if er := srv.Stop(ctx); er != nil {
			logger.Errorf("failed to stop server: %v", er)
		}
		if er := metricsServer.Stop(ctx); er != nil {
			logger.Errorf("failed to stop metrics server: %v", er)
		}
		cancel()
	}()

	err = srv.Start(fmt.Sprintf(":%d", cfg.Port))
	if err != nil && err != http.ErrServerClosed {
		logger.Fatalf("failed to start server: %v", err)
	}
}
