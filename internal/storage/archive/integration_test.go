//go:build integration

package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bluebird/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := Open(s.ctx, DriverPostgres, connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM notification_related")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM notifications")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) newStore() *Store {
	return NewStore(s.db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *PostgresIntegrationSuite) TestStore_Save() {
	store := s.newStore()

	n := &domain.Notification{
		Account: "jack",
		Post: domain.Post{
			ID:        "1790000000000000000",
			Position:  1790000000000000000,
			Account:   "jack",
			URL:       "https://x.com/jack/status/1790000000000000000",
			Text:      "hello",
			Relations: domain.Relations{IsRepost: true},
			CreatedAt: time.Now().Truncate(time.Microsecond),
		},
		RepostOf: &domain.Post{ID: "20", Account: "biz", Text: "original"},
	}

	inserted, err := store.Save(s.ctx, n)
	s.Require().NoError(err)
	s.True(inserted)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM notifications WHERE account = $1 AND post_id = $2", "jack", n.Post.ID)
	s.NoError(err)
	s.Equal(1, count)

	records, err := store.Recent(s.ctx, "jack", 5)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(int64(1790000000000000000), records[0].Position)
	s.Equal("Reposted", records[0].Action)
	s.Require().Len(records[0].Related, 1)
	s.Equal(KindRepostOf, records[0].Related[0].Kind)
}

func (s *PostgresIntegrationSuite) TestStore_SaveDuplicate() {
	store := s.newStore()

	n := &domain.Notification{
		Account: "jack",
		Post:    domain.Post{ID: "1", Position: 1, Account: "jack"},
	}

	inserted, err := store.Save(s.ctx, n)
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = store.Save(s.ctx, n)
	s.Require().NoError(err)
	s.False(inserted)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_Rollback() {
	store := s.newStore()
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.insertNotification(ctx, &Record{
			ID: "00000000-0000-0000-0000-000000000001", Account: "jack", PostID: "1",
			Action: "Posted", NotifiedAt: time.Now(),
		})
		s.Require().NoError(err)
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM notifications")
	s.NoError(err)
	s.Equal(0, count)
}
