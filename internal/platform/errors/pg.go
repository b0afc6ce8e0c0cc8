package errors

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres only backs the day ledger, so only the SQLSTATEs it can hit are classified
const (
	pgErrUniqueViolation        = "23505"
	pgErrUndefinedTable         = "42P01"
	pgErrSerializationFailure   = "40001"
	pgErrDeadlockDetected       = "40P01"
	pgErrLockNotAvailable       = "55P03"
	pgErrReadOnlySQLTransaction = "25006"
	pgErrCannotConnectNow       = "57P03"
)

// pgCodes maps SQLSTATE to ErrorCode; anything else is ErrorCodeDB
var pgCodes = map[string]ErrorCode{
	pgErrUniqueViolation:        ErrorCodeConflict,
	pgErrUndefinedTable:         ErrorCodeNotFound,
	pgErrReadOnlySQLTransaction: ErrorCodeUnavailable,
	pgErrCannotConnectNow:       ErrorCodeUnavailable,
}

// pgTransient lists the SQLSTATEs a ledger transaction may simply retry
var pgTransient = map[string]bool{
	pgErrSerializationFailure: true,
	pgErrDeadlockDetected:     true,
	pgErrLockNotAvailable:     true,
	pgErrCannotConnectNow:     true,
}

// pgx reports some aborted commits only as text
var pgTransientText = []string{
	"commit unexpectedly resulted in rollback",
	"deadlock detected",
	"could not serialize access",
	"terminating connection due to administrator command",
}

// ExtractPgError finds the *pgconn.PgError in err's chain
func ExtractPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if stderrs.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsSQLState reports whether err carries the given SQLSTATE
func IsSQLState(err error, code string) bool {
	pgErr, ok := ExtractPgError(err)
	return ok && pgErr.Code == code
}

func IsDuplicateKey(err error) bool { return IsSQLState(err, pgErrUniqueViolation) }

// IsUndefinedTable reports whether the ledger schema is missing
func IsUndefinedTable(err error) bool { return IsSQLState(err, pgErrUndefinedTable) }

// DBErrorCode maps a postgres error to an ErrorCode; ok is false when err has no PgError
func DBErrorCode(err error) (ErrorCode, bool) {
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}
	if code, known := pgCodes[pgErr.Code]; known {
		return code, true
	}
	return ErrorCodeDB, true
}

// FromPostgres wraps err with msg and its mapped code; nil stays nil
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	code, ok := DBErrorCode(err)
	if !ok {
		code = ErrorCodeDB
	}
	return Wrap(err, code, msg)
}

// IsRetryable reports whether err is a transient postgres condition.
// Context cancellation and deadlines never are
func IsRetryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgErr, ok := ExtractPgError(err); ok {
		return pgTransient[pgErr.Code]
	}
	s := strings.ToLower(Root(err).Error())
	for _, frag := range pgTransientText {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}
