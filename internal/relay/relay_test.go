package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
)

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Insert(ctx context.Context, tx *sqlx.Tx, evt model.OutboxEvent) error {
	args := m.Called(ctx, tx, evt)
	return args.Error(0)
}

func (m *mockOutboxRepo) Notify(ctx context.Context, tx *sqlx.Tx, channel string) error {
	args := m.Called(ctx, tx, channel)
	return args.Error(0)
}

func (m *mockOutboxRepo) LockBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.OutboxEvent, error) {
	args := m.Called(ctx, tx, limit)
	if v := args.Get(0); v != nil {
		return v.([]model.OutboxEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOutboxRepo) DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	args := m.Called(ctx, tx, ids)
	return args.Error(0)
}

var _ repository.OutboxRepository = (*mockOutboxRepo)(nil)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, smock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), smock
}

func TestDrainOnce_PublishesThenDeletesInOneTx(t *testing.T) {
	dbx, smock := newTestDB(t)
	repo := new(mockOutboxRepo)
	pub := new(mockPublisher)

	events := []model.OutboxEvent{
		{ID: "evt-1", AggregateID: "conv-1", Payload: []byte(`{"a":1}`)},
		{ID: "evt-2", AggregateID: "conv-2", Payload: []byte(`{"b":2}`)},
	}

	smock.ExpectBegin()
	repo.On("LockBatch", mock.Anything, mock.Anything, 100).Return(events, nil).Once()
	pub.On("Publish", mock.Anything, "conv-1", []byte(`{"a":1}`)).Return(nil).Once()
	pub.On("Publish", mock.Anything, "conv-2", []byte(`{"b":2}`)).Return(nil).Once()
	repo.On("DeleteBatch", mock.Anything, mock.Anything, []string{"evt-1", "evt-2"}).Return(nil).Once()
	smock.ExpectCommit()

	r := New(dbx, repo, pub, nil, zap.NewNop())

	n, err := r.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestDrainOnce_PublishErrorRollsBackWholeBatch(t *testing.T) {
	dbx, smock := newTestDB(t)
	repo := new(mockOutboxRepo)
	pub := new(mockPublisher)

	events := []model.OutboxEvent{
		{ID: "evt-1", AggregateID: "conv-1", Payload: []byte(`{"a":1}`)},
		{ID: "evt-2", AggregateID: "conv-2", Payload: []byte(`{"b":2}`)},
	}

	smock.ExpectBegin()
	repo.On("LockBatch", mock.Anything, mock.Anything, 100).Return(events, nil).Once()
	pub.On("Publish", mock.Anything, "conv-1", mock.Anything).Return(errors.New("kafka is down")).Once()
	smock.ExpectRollback()

	r := New(dbx, repo, pub, nil, zap.NewNop())

	n, err := r.DrainOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, n)

	// rows stay for the next cycle: nothing was deleted
	repo.AssertNotCalled(t, "DeleteBatch", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestDrainOnce_EmptyBatchShortCircuits(t *testing.T) {
	dbx, smock := newTestDB(t)
	repo := new(mockOutboxRepo)
	pub := new(mockPublisher)

	smock.ExpectBegin()
	repo.On("LockBatch", mock.Anything, mock.Anything, 100).Return([]model.OutboxEvent{}, nil).Once()
	smock.ExpectRollback()

	r := New(dbx, repo, pub, nil, zap.NewNop())

	n, err := r.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDrain_LoopsUntilShortBatch(t *testing.T) {
	dbx, smock := newTestDB(t)
	repo := new(mockOutboxRepo)
	pub := new(mockPublisher)

	full := []model.OutboxEvent{
		{ID: "evt-1", AggregateID: "c", Payload: []byte(`{}`)},
		{ID: "evt-2", AggregateID: "c", Payload: []byte(`{}`)},
	}
	rest := []model.OutboxEvent{
		{ID: "evt-3", AggregateID: "c", Payload: []byte(`{}`)},
	}

	smock.ExpectBegin()
	smock.ExpectCommit()
	smock.ExpectBegin()
	smock.ExpectCommit()

	repo.On("LockBatch", mock.Anything, mock.Anything, 2).Return(full, nil).Once()
	repo.On("LockBatch", mock.Anything, mock.Anything, 2).Return(rest, nil).Once()
	pub.On("Publish", mock.Anything, "c", mock.Anything).Return(nil).Times(3)
	repo.On("DeleteBatch", mock.Anything, mock.Anything, []string{"evt-1", "evt-2"}).Return(nil).Once()
	repo.On("DeleteBatch", mock.Anything, mock.Anything, []string{"evt-3"}).Return(nil).Once()

	r := New(dbx, repo, pub, nil, zap.NewNop())
	r.BatchSize = 2

	require.NoError(t, r.Drain(context.Background()))
	repo.AssertExpectations(t)
}
