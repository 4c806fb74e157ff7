package repo

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrConflict = errors.New("conflicting row")
	ErrBadID    = errors.New("bad id")
)

const (
	maxIDLen         = 100
	defaultSyncLimit = 1000
	uniqueViolation  = "23505"
)

func errorsIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen
}
