package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/doananhhung/livechat-sub002/internal/model"
)

// ProjectsRepository is the thin tenant-lookup surface the API needs.
type ProjectsRepository interface {
	GetByAPIKey(ctx context.Context, key string) (*model.Project, error)
	Insert(ctx context.Context, p model.Project) error
}

type ProjectsRepositoryImpl struct {
	db *sqlx.DB
}

func NewProjectsRepository(db *sqlx.DB) *ProjectsRepositoryImpl {
	return &ProjectsRepositoryImpl{db: db}
}

// GetByAPIKey returns (nil, nil) when the key is unknown.
func (r *ProjectsRepositoryImpl) GetByAPIKey(ctx context.Context, key string) (*model.Project, error) {
	const q = `SELECT id, name, api_key, created_at FROM projects WHERE api_key = $1`
	var p model.Project
	if err := r.db.GetContext(ctx, &p, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProjectsRepositoryImpl) Insert(ctx context.Context, p model.Project) error {
	const q = `INSERT INTO projects (id, name, api_key, created_at) VALUES ($1, $2, $3, NOW())`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.APIKey)
	return err
}
