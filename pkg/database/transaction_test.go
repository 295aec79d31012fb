package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	testioc "storefront-backend/internal/test/ioc"
	"storefront-backend/pkg/database"
)

func TestNoopTransactorRunsFnDirectly(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	called := false
	err := database.NoopTransactor{}.WithinTransaction(ctx, func(inner context.Context) error {
		called = true
		_, ok := database.TxFromContext(inner)
		assert.False(t, ok)
		return boom
	})
	assert.True(t, called)
	require.ErrorIs(t, err, boom)
}

type PgxTransactorSuite struct {
	suite.Suite

	pool *pgxpool.Pool
	ctx  context.Context
}

func TestPgxTransactorSuite(t *testing.T) {
	suite.Run(t, new(PgxTransactorSuite))
}

func (s *PgxTransactorSuite) SetupSuite() {
	s.pool = testioc.InitDB(s.T())
	s.ctx = context.Background()
}

func (s *PgxTransactorSuite) TearDownTest() {
	testioc.Truncate(s.T(), s.pool)
}

func (s *PgxTransactorSuite) insertProduct(ctx context.Context, name string) uuid.UUID {
	id := uuid.New()
	_, err := database.Conn(ctx, s.pool).Exec(ctx, `INSERT INTO products (id, name, base_price) VALUES ($1, $2, 1000)`, id, name)
	s.Require().NoError(err)
	return id
}

func (s *PgxTransactorSuite) productExists(id uuid.UUID) bool {
	var n int
	s.Require().NoError(s.pool.QueryRow(s.ctx, `SELECT COUNT(*) FROM products WHERE id = $1`, id).Scan(&n))
	return n == 1
}

func (s *PgxTransactorSuite) TestCommitAndRollback() {
	tx := database.NewPgxTransactor(s.pool, 0)

	var kept uuid.UUID
	s.Require().NoError(tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
		_, ok := database.TxFromContext(ctx)
		s.True(ok)
		kept = s.insertProduct(ctx, "kept")
		return nil
	}))
	s.True(s.productExists(kept))

	var dropped uuid.UUID
	boom := errors.New("boom")
	err := tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
		dropped = s.insertProduct(ctx, "dropped")
		return boom
	})
	s.ErrorIs(err, boom)
	s.False(s.productExists(dropped))
}

func (s *PgxTransactorSuite) TestNestedCallIsASavepoint() {
	tx := database.NewPgxTransactor(s.pool, 0)

	var outer, inner uuid.UUID
	err := tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
		outer = s.insertProduct(ctx, "outer")

		innerErr := tx.WithinTransaction(ctx, func(ctx context.Context) error {
			inner = s.insertProduct(ctx, "inner")
			return errors.New("inner step failed")
		})
		s.Error(innerErr)

		// the outer transaction is still usable
		var n int
		return database.Conn(ctx, s.pool).QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	})
	s.Require().NoError(err)

	s.True(s.productExists(outer))
	s.False(s.productExists(inner))
}

func (s *PgxTransactorSuite) TestPanicRollsBack() {
	tx := database.NewPgxTransactor(s.pool, 0)

	var id uuid.UUID
	s.Panics(func() {
		_ = tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
			id = s.insertProduct(ctx, "panicked")
			panic("boom")
		})
	})
	s.False(s.productExists(id))
}

func (s *PgxTransactorSuite) TestLockTimeoutBoundsRowWaits() {
	tx := database.NewPgxTransactor(s.pool, 150*time.Millisecond)
	id := s.insertProduct(s.ctx, "contended")

	s.Require().NoError(tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
		var setting string
		s.Require().NoError(database.Conn(ctx, s.pool).QueryRow(ctx, `SHOW lock_timeout`).Scan(&setting))
		s.Equal("150ms", setting)
		return nil
	}))

	holder, err := s.pool.Begin(s.ctx)
	s.Require().NoError(err)
	defer func() { _ = holder.Rollback(s.ctx) }()
	_, err = holder.Exec(s.ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id)
	s.Require().NoError(err)

	started := time.Now()
	err = tx.WithinTransaction(s.ctx, func(ctx context.Context) error {
		_, err := database.Conn(ctx, s.pool).Exec(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id)
		return err
	})

	var pgErr *pgconn.PgError
	s.Require().ErrorAs(err, &pgErr)
	s.Equal("55P03", pgErr.Code)
	s.Less(time.Since(started), 5*time.Second)
}
