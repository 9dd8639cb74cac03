package mongovcore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// Server error codes used by TranslateError.
const (
	codeIndexNotFound        = 27
	codeNamespaceNotFound    = 26
	codeIndexAlreadyExists   = 68
	codeIndexOptionConflict  = 85
	codeIndexKeySpecConflict = 86
	codeExceededTimeLimit    = 50
	codeBadValue             = 2
	codeFailedToParse        = 9
)

var (
	// ErrConnectionFailed is returned when the cluster cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrInvalidData is returned when the server rejects a command or value.
	ErrInvalidData = errors.New("invalid data")

	// ErrTimeout is returned when an operation or the context times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrTransient is returned for errors the server labels as retryable.
	ErrTransient = errors.New("transient database error")
)

// TranslateError converts driver errors into the sentinels above and the
// vectorstore sentinels. The original error stays in the chain.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return wrap(vectorstore.ErrNotFound, err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return wrap(ErrConnectionFailed, err)
	case mongo.IsDuplicateKeyError(err):
		return wrap(ErrDuplicateKey, err)
	case mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return wrap(ErrTimeout, err)
	case mongo.IsNetworkError(err):
		return wrap(ErrConnectionFailed, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(codeIndexAlreadyExists),
			serverErr.HasErrorCode(codeIndexOptionConflict),
			serverErr.HasErrorCode(codeIndexKeySpecConflict):
			return wrap(vectorstore.ErrIndexExists, err)
		case serverErr.HasErrorCode(codeIndexNotFound), serverErr.HasErrorCode(codeNamespaceNotFound):
			return wrap(vectorstore.ErrNotFound, err)
		case serverErr.HasErrorCode(codeExceededTimeLimit):
			return wrap(ErrTimeout, err)
		case serverErr.HasErrorCode(codeBadValue), serverErr.HasErrorCode(codeFailedToParse):
			return wrap(ErrInvalidData, err)
		case serverErr.HasErrorLabel("TransientTransactionError"), serverErr.HasErrorLabel("RetryableWriteError"):
			return wrap(ErrTransient, err)
		}
	}

	return err
}

// bulkWriteError flattens the per-document failures of a BulkWriteException
// so each one shows up in the message and in the error chain.
func bulkWriteError(err error) error {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return err
	}
	errs := make([]error, 0, len(bwe.WriteErrors)+1)
	errs = append(errs, err)
	for _, we := range bwe.WriteErrors {
		errs = append(errs, fmt.Errorf("document %d: %w", we.Index, we))
	}
	return errors.Join(errs...)
}

func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
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
	case errors.Is(err, vectorstore.ErrNotFound):
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
