package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/config"
	"github.com/doananhhung/livechat-sub002/internal/db"
	httpSrv "github.com/doananhhung/livechat-sub002/internal/http"
	"github.com/doananhhung/livechat-sub002/internal/kafka"
	"github.com/doananhhung/livechat-sub002/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Encoding)

		pg, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			PingTimeout:     cfg.Postgres.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pg.Close()

		rds, err := db.NewRedisClient(cmd.Context(), db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		producer := kafka.NewProducerFromConfig(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		defer func() { _ = producer.Close() }()

		server := httpSrv.NewServer(cfg, pg, rds, producer)

		errCh := make(chan error, 1)
		go func() {
			logger.L().Info("starting http", zap.String("addr", cfg.HTTP.Addr))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.L().Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				logger.L().Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
