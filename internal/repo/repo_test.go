package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func tNow() time.Time {
	return time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func Test_newBase_DefaultTimeouts(t *testing.T) {
	b := newBase(nil)

	ctxQ, cancelQ := b.withQ(context.Background())
	defer cancelQ()
	dlQ, ok := ctxQ.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(2*time.Second), dlQ, 200*time.Millisecond)

	ctxT, cancelT := b.withTx(context.Background())
	defer cancelT()
	dlT, ok := ctxT.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(5*time.Second), dlT, 200*time.Millisecond)
}

func Test_errorHelpers(t *testing.T) {
	require.True(t, errorsIsNoRows(pgx.ErrNoRows))
	require.False(t, errorsIsNoRows(errors.New("x")))
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(nil))
	require.False(t, validID(""))
	require.True(t, validID("o-1"))
}

func Test_Migrate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())

	failing := newMock(t)
	failing.ExpectExec(regexp.QuoteMeta(schema)).WillReturnError(errors.New("permission denied"))
	err := Migrate(context.Background(), failing)
	require.ErrorContains(t, err, "apply schema")
}
