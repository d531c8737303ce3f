package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/auction"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/coordinator"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow/evm"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow/near"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/graceful"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/manager"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/refund"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/reveal"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/signing"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/tasks"
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

	sdClient, err := statsd.New(cfg.DataDog.Host + ":" + cfg.DataDog.Port)
	if err != nil {
		logger.Fatalf("failed to initialize StatsD client: %v", err)
	}

	pgPool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to initialize Postgres pool: %v", err)
	}
	defer pgPool.Close()

	swapStore := ledger.NewPgStore(pgPool)
	if err := swapStore.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate swap storage: %v", err)
	}
	auctionStore := auction.NewPgStore(pgPool)
	if err := auctionStore.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate auction storage: %v", err)
	}
	ldg := ledger.New(logger, swapStore)

	signingClient := signing.NewClient(cfg.Signer.URL)

	ethClient, err := ethclient.DialContext(ctx, cfg.Evm.RpcURL)
	if err != nil {
		logger.Fatalf("failed to dial EVM rpc: %v", err)
	}
	sourceAdapter, err := evm.NewAdapter(
		logger,
		ethClient,
		signing.NewEVMSigner(signingClient, cfg.Evm.ChainID),
		evm.Config{
			ChainID:         cfg.Evm.ChainID,
			Contract:        common.HexToAddress(cfg.Evm.Contract),
			ConfirmDepth:    cfg.Evm.ConfirmDepth,
			ReceiptInterval: time.Duration(cfg.Evm.ReceiptIntervalSec) * time.Second,
		},
	)
	if err != nil {
		logger.Fatalf("failed to initialize EVM escrow adapter: %v", err)
	}

	destAdapter := near.NewAdapter(
		logger,
		near.NewClient(cfg.Near.RpcURL),
		signing.NewActionSigner(signingClient, cfg.Near.ChainID, cfg.Near.SenderID),
		near.Config{
			ChainID:          cfg.Near.ChainID,
			Contract:         cfg.Near.Contract,
			FinalizeInterval: time.Duration(cfg.Near.FinalizeIntervalSec) * time.Second,
		},
	)

	mgr, err := manager.New(logger, ldg, sourceAdapter, destAdapter, manager.Config{
		ConfirmCeiling: time.Duration(cfg.Swap.ConfirmCeilingSec) * time.Second,
		MaxAttempts:    cfg.Swap.EscrowMaxAttempts,
		SourceTimelock: time.Duration(cfg.Swap.SourceTimelockSec) * time.Second,
		DestTimelock:   time.Duration(cfg.Swap.DestTimelockSec) * time.Second,
	})
	if err != nil {
		logger.Fatalf("failed to initialize escrow manager: %v", err)
	}

	rvl := reveal.New(logger, ldg, sourceAdapter, destAdapter, reveal.Config{
		RetryInterval:    time.Duration(cfg.Swap.RevealRetrySec) * time.Second,
		MaxFirstAttempts: cfg.Swap.RevealMaxAttempts,
	})

	watcher := refund.New(logger, ldg, map[string]escrow.Adapter{
		sourceAdapter.ChainID(): sourceAdapter,
		destAdapter.ChainID():   destAdapter,
	}, time.Duration(cfg.Swap.RefundIntervalSec)*time.Second)
	go func() {
		if er := watcher.Run(ctx); er != nil && er != context.Canceled {
			logger.Errorf("refund watcher stopped: %v", er)
		}
	}()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metricsServer := metrics.NewServer(cfg.MetricsPort, reg)
	metricsServer.Start(logger)
	defer func() {
		if er := metricsServer.Stop(ctx); er != nil {
			logger.Errorf("failed to stop metrics server: %v", er)
		}
	}()

	redisOptions := asynq.RedisClientOpt{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Re-drive swaps that were in flight when the previous process died.
	client := asynq.NewClient(redisOptions)
	if err := enqueueResumes(ctx, logger, ldg, client); err != nil {
		logger.Fatalf("failed to enqueue resume tasks: %v", err)
	}

	swapConsumer := coordinator.NewConsumer(logger, auctionStore, mgr, rvl, sdClient)

	consumer := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueName: 10,
			},
		},
	)

	go func() {
		sig := <-graceful.MakeSigintChan()
		logger.Infof("received exit signal: %v", sig)
		cancel()
		consumer.Shutdown()
	}()

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSwapExecute, swapConsumer.HandleExecute)
	mux.HandleFunc(tasks.TypeSwapResume, swapConsumer.HandleResume)
	err = consumer.Run(mux)
	if err != nil {
		logger.Fatalf("failed to run consumer: %v", err)
	}
}

func enqueueResumes(ctx context.Context, logger *logrus.Logger, ldg *ledger.Ledger, client *asynq.Client) error {
	active, err := ldg.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, rec := range active {
		task, er := tasks.NewSwapResumeTask(rec.SwapID)
		if er != nil {
			return er
		}
		if _, er := client.EnqueueContext(ctx, task); er != nil {
			return er
		}
		logger.WithFields(logrus.Fields{
			"swapId": rec.SwapID.String(),
			"state":  rec.State,
		}).Info("enqueued swap resume")
	}
	return nil
}
