package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/culture-arena/domain"
	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestUpsertArtifactCommitsArtifactAndCursorInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_cursor").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpsertArtifact(ctx, domain.Artifact{ID: "a1", BlockNumber: 5}, domain.EventCursor{BlockNumber: 5, LogIndex: 0})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArtifactMapsUniqueViolationToStoreConflict(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifacts").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := s.UpsertArtifact(ctx, domain.Artifact{ID: "a1"}, domain.EventCursor{})
	require.Error(t, err)

	svcErr := svcerrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, svcerrors.ErrCodeStoreConflict, svcErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeFromBlockDeletesAllThreeTablesAndRewindsCursor(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM artifacts").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM citations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM round_finalizations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO event_cursor").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.PurgeFromBlock(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArtifactRollsBackOnCursorWriteFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_cursor").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.UpsertArtifact(ctx, domain.Artifact{ID: "a1"}, domain.EventCursor{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
