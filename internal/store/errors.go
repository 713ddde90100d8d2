package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
	pgUndefinedFunction   = "42883"
	pgUndefinedTable      = "42P01"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// isUndefinedFunctionError matches a missing grant_credits function.
func isUndefinedFunctionError(err error) bool {
	return pgErrorCode(err) == pgUndefinedFunction
}

func isUndefinedTableError(err error) bool {
	return pgErrorCode(err) == pgUndefinedTable
}

// isUnknownProfileError covers ids that cannot name a profile at all.
func isUnknownProfileError(err error) bool {
	switch pgErrorCode(err) {
	case pgInvalidTextRepr, pgForeignKeyViolation:
		return true
	}
	return false
}
