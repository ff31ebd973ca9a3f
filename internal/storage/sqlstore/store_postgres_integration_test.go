//go:build integration

package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"achievements/internal/storage/sqlstore"
	"achievements/pkg/platform/sentinel"
	"achievements/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	dsn   string
	store *sqlstore.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())
	s.dsn = pg.DSN
	store, err := sqlstore.OpenPostgres(context.Background(), pg.DSN)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func (s *PostgresStoreSuite) TestLoadMissingDocument() {
	_, err := s.store.Load(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertReplacesDocument() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "achievements.pg", []byte(`[]`)))
	s.Require().NoError(s.store.Save(ctx, "achievements.pg", []byte(`[{"key":"a.b"}]`)))

	got, err := s.store.Load(ctx, "achievements.pg")
	s.Require().NoError(err)
	s.JSONEq(`[{"key":"a.b"}]`, string(got))
}

func (s *PostgresStoreSuite) TestReopenKeepsDocuments() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "achievements.reopen", []byte(`["kept"]`)))

	reopened, err := sqlstore.OpenPostgres(ctx, s.dsn)
	s.Require().NoError(err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "achievements.reopen")
	s.Require().NoError(err)
	s.Equal(`["kept"]`, string(got))
}
