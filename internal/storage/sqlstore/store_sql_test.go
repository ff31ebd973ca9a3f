package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"achievements/pkg/platform/sentinel"
)

type SQLiteStoreSuite struct {
	suite.Suite
	path  string
	store *Store
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "achievements.db")
	store, err := OpenSQLite(context.Background(), s.path)
	s.Require().NoError(err)
	s.store = store
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *SQLiteStoreSuite) TestLoadMissingDocument() {
	_, err := s.store.Load(context.Background(), "absent")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestSaveOverwritesWholeDocument() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "achievements.a", []byte(`[{"key":"one"}]`)))
	s.Require().NoError(s.store.Save(ctx, "achievements.a", []byte(`[{"key":"one"},{"key":"two"}]`)))

	data, err := s.store.Load(ctx, "achievements.a")
	s.Require().NoError(err)
	s.JSONEq(`[{"key":"one"},{"key":"two"}]`, string(data))
}

func (s *SQLiteStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "achievements.a", []byte(`[]`)))
	s.Require().NoError(s.store.Save(ctx, "achievements.a.version", []byte(`{"previous_running_version":"2024.1.0"}`)))

	data, err := s.store.Load(ctx, "achievements.a")
	s.Require().NoError(err)
	s.Equal(`[]`, string(data))
}

func (s *SQLiteStoreSuite) TestDocumentsSurviveReopen() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "achievements.a", []byte(`["kept"]`)))
	s.Require().NoError(s.store.Close())

	reopened, err := OpenSQLite(ctx, s.path)
	s.Require().NoError(err)
	s.store = reopened

	data, err := s.store.Load(ctx, "achievements.a")
	s.Require().NoError(err)
	s.Equal(`["kept"]`, string(data))
	s.NoError(s.store.Health(ctx))
}

func TestSaveOnClosedDatabaseIsUnavailable(t *testing.T) {
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Save(context.Background(), "k", []byte("{}"))
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}
