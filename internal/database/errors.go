package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the services react to
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// sqlState extracts the SQLSTATE from an error raised by either driver
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a duplicate key, e.g. a taken username
func IsUniqueViolation(err error) bool {
	return err != nil && sqlState(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports a row that is still referenced, e.g. a book
// with loan history
func IsForeignKeyViolation(err error) bool {
	return err != nil && sqlState(err) == codeForeignKeyViolation
}
