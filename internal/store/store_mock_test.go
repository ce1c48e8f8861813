package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDB creates a store backed by a sqlmock connection, for injecting
// driver-level failures that an in-memory database cannot produce.
func newMockDB(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewGormStore(gormDB), mock
}

func TestListMachinesWrapsQueryFailure(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machines"`)).
		WillReturnError(errors.New("connection reset by peer"))

	machines, err := s.ListMachines(context.Background())
	assert.Nil(t, machines)
	assert.ErrorContains(t, err, "failed to list machines")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionByExternalIDPropagatesDriverFailure(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions"`)).
		WillReturnError(errors.New("connection reset by peer"))

	txn, err := s.TransactionByExternalID(context.Background(), "ext-1")
	assert.Nil(t, txn)
	// Only a clean not-found collapses to nil,nil; a driver failure must
	// surface so the webhook is retried by the gateway.
	assert.Error(t, err)
	assert.NotErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriftedMachinesWrapsQueryFailure(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machines"`)).
		WillReturnError(errors.New("read timeout"))

	machines, err := s.DriftedMachines(context.Background())
	assert.Nil(t, machines)
	assert.ErrorContains(t, err, "failed to scan for drifted machines")
	assert.NoError(t, mock.ExpectationsWereMet())
}
