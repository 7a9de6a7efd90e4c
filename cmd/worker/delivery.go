package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doananhhung/livechat-sub002/internal/config"
	"github.com/doananhhung/livechat-sub002/internal/db"
	"github.com/doananhhung/livechat-sub002/internal/dispatch"
	"github.com/doananhhung/livechat-sub002/internal/kafka"
	"github.com/doananhhung/livechat-sub002/internal/logger"
	"github.com/doananhhung/livechat-sub002/internal/metrics"
	"github.com/doananhhung/livechat-sub002/internal/queue"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/worker"
)

var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Run webhook dispatcher and delivery worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Encoding)

		metrics.MustRegister(prometheus.DefaultRegisterer)

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
			PoolSize:    cfg.Delivery.Workers * 2,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		consumer := kafka.NewConsumerFromConfig(kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		subsRepo := repository.NewSubscriptionsRepository(pg)
		deliveriesRepo := repository.NewDeliveriesRepository(pg)
		q := queue.New(rds, cfg.Delivery.MaxAttempts, cfg.Delivery.BackoffBase)
		if cfg.Delivery.LeaseTimeout > 0 {
			q.LeaseTimeout = cfg.Delivery.LeaseTimeout
		}

		d := dispatch.New(consumer, subsRepo, q, logger.L())
		pool := worker.NewDeliveryPool(q, subsRepo, deliveriesRepo, cfg.Delivery.Timeout, cfg.Delivery.Workers, logger.L())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return d.Run(ctx) })
		g.Go(func() error { return pool.Run(ctx) })
		g.Go(func() error { q.RunMaintenance(ctx, 500*time.Millisecond); return nil })

		return g.Wait()
	},
}
