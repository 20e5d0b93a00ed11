package partition

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "CART_SVC_SKIP_INTEGRATION_TESTS"

// PgStoreSuite runs PgStore against a real PostgreSQL.
type PgStoreSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	store       *PgStore
	logger      *slog.Logger
	ctx         context.Context
}

func (s *PgStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("carts"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")

	for i := range 10 {
		s.logger.Info("Pinging PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	wd, _ := os.Getwd()
	sourceURL := "file://" + filepath.Join(wd, "..", "..", "migrations")
	m, err := migrate.New(sourceURL, connStr)
	require.NoError(s.T(), err, "Failed to create migrate instance")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		require.NoError(s.T(), err, "Failed to apply migrations")
	}

	s.store = NewPgStore(s.dbPool)
}

func (s *PgStoreSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

func (s *PgStoreSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE cart_partitions")
	require.NoError(s.T(), err, "Failed to truncate cart_partitions table")
}

func TestPgStoreIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PgStoreSuite))
}

func (s *PgStoreSuite) TestLoad_NotFound() {
	_, err := s.store.Load(s.ctx, Key(DefaultPrefix, "missing"))
	require.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *PgStoreSuite) TestSaveAndLoad() {
	// given
	key := Key(DefaultPrefix, "user1")
	payload := `{"items":[{"identity":"A","quantity":2,"unitPrice":100.5}]}`

	// when
	require.NoError(s.T(), s.store.Save(s.ctx, key, []byte(payload)))
	got, err := s.store.Load(s.ctx, key)

	// then
	require.NoError(s.T(), err)
	assert.JSONEq(s.T(), payload, string(got))
}

func (s *PgStoreSuite) TestSave_Overwrites() {
	// given
	key := Key(DefaultPrefix, "")
	require.NoError(s.T(), s.store.Save(s.ctx, key, []byte(`{"items":[{"identity":"A","quantity":1,"unitPrice":1}]}`)))

	// when
	require.NoError(s.T(), s.store.Save(s.ctx, key, []byte(`{"items":[]}`)))

	// then
	got, err := s.store.Load(s.ctx, key)
	require.NoError(s.T(), err)
	var doc struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(s.T(), json.Unmarshal(got, &doc))
	assert.Empty(s.T(), doc.Items)

	var rows int
	require.NoError(s.T(), s.dbPool.QueryRow(s.ctx, "SELECT count(*) FROM cart_partitions").Scan(&rows))
	assert.Equal(s.T(), 1, rows)
}

func (s *PgStoreSuite) TestSave_InvalidJSON() {
	err := s.store.Save(s.ctx, Key(DefaultPrefix, "user1"), []byte("not json"))
	require.Error(s.T(), err)
}
