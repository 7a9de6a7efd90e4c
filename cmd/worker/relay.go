package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/config"
	"github.com/doananhhung/livechat-sub002/internal/db"
	"github.com/doananhhung/livechat-sub002/internal/kafka"
	"github.com/doananhhung/livechat-sub002/internal/logger"
	"github.com/doananhhung/livechat-sub002/internal/relay"
	"github.com/doananhhung/livechat-sub002/internal/repository"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run outbox relay (safe to run multiple instances)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
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

		producer := kafka.NewProducerFromConfig(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		defer func() { _ = producer.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		listener, err := db.NewListener(ctx, cfg.Postgres.DSN, cfg.Relay.Channel)
		if err != nil {
			// the fallback ticker still guarantees forward progress
			logger.L().Warn("notify listener unavailable, using ticker only", zap.Error(err))
			listener = nil
		} else {
			defer func() { _ = listener.Close(context.Background()) }()
		}

		r := relay.New(pg, repository.NewOutboxRepository(), producer, notifierOrNil(listener), logger.L())
		if cfg.Relay.BatchSize > 0 {
			r.BatchSize = cfg.Relay.BatchSize
		}
		if cfg.Relay.FallbackInterval > 0 {
			r.FallbackInterval = cfg.Relay.FallbackInterval
		}

		return r.Run(ctx)
	},
}

// notifierOrNil avoids a typed-nil interface when the listener failed to start.
func notifierOrNil(l *db.Listener) relay.Notifier {
	if l == nil {
		return nil
	}
	return l
}
