package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/adi3433/securevote-pro/api"
	"github.com/adi3433/securevote-pro/config"
	"github.com/adi3433/securevote-pro/service"
	"github.com/adi3433/securevote-pro/storage"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ballot ledger API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := storage.NewSQLiteStore(cfg.DataDir, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := prometheus.NewRegistry()
			votingService, err := service.NewVotingService(store, service.Options{
				Salt:           cfg.Salt,
				DemoMode:       cfg.DemoMode,
				BloomCapacity:  cfg.BloomCapacity,
				BloomErrorRate: cfg.BloomErrorRate,
				AuditStackMax:  cfg.AuditStackMax,
				Logger:         logger,
				PromRegistry:   registry,
			})
			if err != nil {
				return err
			}

			queue := service.NewQueueProcessor(votingService, cfg.QueueSize)
			queue.Start()
			defer queue.Stop()

			ctx, stop := signal.NotifyContext(
				context.Background(),
				syscall.SIGINT, syscall.SIGTERM,
			)
			defer stop()

			server := api.NewServer(
				votingService,
				queue,
				cfg.ListenAddress,
				logger,
				registry,
			)
			if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
