package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doananhhung/livechat-sub002/internal/config"
	"github.com/doananhhung/livechat-sub002/internal/db"
	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/service/events"
	"github.com/doananhhung/livechat-sub002/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo project with an API key (dev only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		pg, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
			PingTimeout: cfg.Postgres.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer pg.Close()

		apiKey, err := util.NewSecret(24)
		if err != nil {
			return fmt.Errorf("generate api key: %w", err)
		}

		p := model.Project{
			ID:     uuid.New().String(),
			Name:   "demo",
			APIKey: apiKey,
		}
		if err := repository.NewProjectsRepository(pg).Insert(context.Background(), p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}

		// drop a demo event into the outbox so a running relay has
		// something to pick up right after seeding
		emitter := events.NewEmitter(repository.NewOutboxRepository(), nil, cfg.Relay.Channel)
		tx, err := pg.Beginx()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		evt, err := emitter.EmitTx(context.Background(), tx, p.ID, "project", p.ID, "project.created",
			map[string]string{"name": p.Name})
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("emit demo event: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		fmt.Printf(">> project %s created\n>> api key: %s\n>> outbox event: %s\n", p.ID, p.APIKey, evt.ID)
		return nil
	},
}
