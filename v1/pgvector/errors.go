package pgvector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// Common database error types. Sentinels shared by all backends live in the
// vectorstore package; TranslateError maps onto both sets.
var (
	// ErrConnectionFailed is returned when the database cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrUndefinedTable is returned when the vector table does not exist.
	ErrUndefinedTable = errors.New("undefined table")

	// ErrUndefinedObject is returned for missing types, extensions or indexes,
	// most often because the vector extension is not installed.
	ErrUndefinedObject = errors.New("undefined object")

	// ErrInvalidData is returned when the server rejects a value.
	ErrInvalidData = errors.New("invalid data")

	// ErrTimeout is returned when a statement or the context times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrTransient is returned for serialization failures, deadlocks and
	// server-side resource exhaustion.
	ErrTransient = errors.New("transient database error")
)

// TranslateError converts gorm and pgx errors into the sentinels above and
// the vectorstore sentinels. The original error stays in the chain.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrap(sqlStateError(pgErr), err)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return wrap(vectorstore.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return wrap(ErrDuplicateKey, err)
	case errors.Is(err, gorm.ErrInvalidData):
		return wrap(ErrInvalidData, err)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return wrap(ErrTimeout, err)
		}
		return wrap(ErrConnectionFailed, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return wrap(ErrConnectionFailed, err)
	}

	return err
}

func sqlStateError(pgErr *pgconn.PgError) error {
	switch code := pgErr.Code; {
	case code == "23505":
		return ErrDuplicateKey
	case code == "42P01":
		return ErrUndefinedTable
	case code == "42P07":
		// CREATE INDEX on an existing relation name.
		return vectorstore.ErrIndexExists
	case code == "42704", code == "58P01":
		return ErrUndefinedObject
	case code == "22000" && strings.Contains(pgErr.Message, "dimensions"):
		return vectorstore.ErrDimensionMismatch
	case strings.HasPrefix(code, "22"):
		return ErrInvalidData
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P02", code == "57P03":
		return ErrConnectionFailed
	case code == "57014":
		return ErrTimeout
	case code == "40001", code == "40P01", strings.HasPrefix(code, "53"):
		return ErrTransient
	}
	return nil
}

func wrap(sentinel, err error) error {
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// ErrorCategory groups errors by how callers should react to them.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryConnection
	CategoryNotFound
	CategoryConflict
	CategoryInvalid
	CategoryTimeout
	CategoryTransient
)

// GetErrorCategory returns the category of an error, translating it first.
func GetErrorCategory(err error) ErrorCategory {
	err = TranslateError(err)
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrConnectionFailed):
		return CategoryConnection
	case errors.Is(err, vectorstore.ErrNotFound), errors.Is(err, ErrUndefinedTable), errors.Is(err, ErrUndefinedObject):
		return CategoryNotFound
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, vectorstore.ErrIndexExists):
		return CategoryConflict
	case errors.Is(err, ErrInvalidData), errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, vectorstore.ErrInvalidInput), errors.Is(err, vectorstore.ErrInvalidFilter):
		return CategoryInvalid
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrTransient):
		return CategoryTransient
	}
	return CategoryUnknown
}

// IsRetryable reports whether retrying the operation may succeed.
func IsRetryable(err error) bool {
	switch GetErrorCategory(err) {
	case CategoryConnection, CategoryTimeout, CategoryTransient:
		return true
	}
	return false
}
