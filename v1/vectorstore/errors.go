package vectorstore

import "errors"

var (
	// ErrInvalidFilter is returned when a filter dictionary or condition cannot be translated.
	ErrInvalidFilter = errors.New("vectorstore: invalid filter")

	// ErrInvalidInput is returned for malformed arguments such as mismatched slice lengths.
	ErrInvalidInput = errors.New("vectorstore: invalid input")

	// ErrNotFound is returned when a table, collection or index does not exist.
	ErrNotFound = errors.New("vectorstore: not found")

	// ErrDimensionMismatch is returned when a vector does not match the configured length.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")

	// ErrIndexExists is returned when creating an index whose name is taken.
	ErrIndexExists = errors.New("vectorstore: index already exists")

	// ErrUnsupported is returned when a backend cannot serve a filter or index kind.
	ErrUnsupported = errors.New("vectorstore: unsupported by backend")

	// ErrNoEmbedder is returned when texts must be embedded but no embedder is configured.
	ErrNoEmbedder = errors.New("vectorstore: no embedder configured")
)
