package errors

// ClickHouse-specific helpers: classify driver exceptions and network failures

import (
	"context"
	stderrs "errors"
	"io"
	"net"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// server exception codes worth another attempt
var chTransientCodes = map[int32]struct{}{
	159: {}, // TIMEOUT_EXCEEDED
	160: {}, // TOO_SLOW
	202: {}, // TOO_MANY_SIMULTANEOUS_QUERIES
	203: {}, // NO_FREE_CONNECTION
	209: {}, // SOCKET_TIMEOUT
	210: {}, // NETWORK_ERROR
	241: {}, // MEMORY_LIMIT_EXCEEDED
	242: {}, // TABLE_IS_READ_ONLY
	425: {}, // SYSTEM_ERROR
	999: {}, // KEEPER_EXCEPTION
}

// ExtractCHException returns the server exception if err carries one
func ExtractCHException(err error) (*clickhouse.Exception, bool) {
	var ex *clickhouse.Exception
	if stderrs.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// IsTransientCH reports whether a ClickHouse error is a transient server or network failure
func IsTransientCH(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	if ex, ok := ExtractCHException(err); ok {
		_, transient := chTransientCodes[ex.Code]
		return transient
	}
	if stderrs.Is(err, clickhouse.ErrAcquireConnTimeout) ||
		stderrs.Is(err, io.EOF) ||
		stderrs.Is(err, io.ErrUnexpectedEOF) ||
		stderrs.Is(err, syscall.ECONNREFUSED) ||
		stderrs.Is(err, syscall.ECONNRESET) ||
		stderrs.Is(err, syscall.EPIPE) {
		return true
	}
	var nerr net.Error
	return stderrs.As(err, &nerr)
}

// FromClickhouse wraps a clickhouse error, tagging transient failures as Unavailable.
// If err is nil, returns nil
func FromClickhouse(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsTransientCH(err) {
		return Wrap(err, ErrorCodeUnavailable, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}
