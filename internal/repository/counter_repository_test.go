package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCounterNext(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCounterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO counters (key, count) VALUES ($1, 1)")).
		WithArgs("CA68").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.Next(context.Background(), "CA68")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterNextFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCounterRepository(db)

	mock.ExpectQuery("INSERT INTO counters").WillReturnError(fmt.Errorf("connection refused"))

	_, err := repo.Next(context.Background(), "CA68")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
