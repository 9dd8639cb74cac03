package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultBatchSize is the number of records written per round trip.
	DefaultBatchSize = 100

	// DefaultFetchK is the number of candidates fetched before MMR reranking.
	DefaultFetchK = 20

	// DefaultLambda balances relevance and diversity in MMR.
	DefaultLambda = 0.5
)

// ResolveIDs returns one id per text. An explicit id wins, then a string
// metadata["id"], then a fresh UUIDv4.
func ResolveIDs(n int, ids []string, metadatas []map[string]any) ([]string, error) {
	if len(ids) > 0 && len(ids) != n {
		return nil, fmt.Errorf("%w: got %d ids for %d texts", ErrInvalidInput, len(ids), n)
	}
	if len(metadatas) > 0 && len(metadatas) != n {
		return nil, fmt.Errorf("%w: got %d metadatas for %d texts", ErrInvalidInput, len(metadatas), n)
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		switch {
		case len(ids) > 0 && ids[i] != "":
			out[i] = ids[i]
		case len(metadatas) > 0 && metadatas[i] != nil && metadataID(metadatas[i]) != "":
			out[i] = metadataID(metadatas[i])
		default:
			out[i] = uuid.NewString()
		}
	}
	return out, nil
}

func metadataID(m map[string]any) string {
	switch id := m[IDKey].(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	}
	return ""
}

// LastByID keeps one record per id: the last one, at the position where the
// id first appeared. Backends use it so a repeated id in one write behaves
// like sequential upserts.
func LastByID(records []Record) []Record {
	seen := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := seen[r.ID]; ok {
			out[i] = r
			continue
		}
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// Batch is a half-open [Start, End) range.
type Batch struct {
	Start, End int
}

// Batches splits n items into ranges of at most size items.
func Batches(n, size int) []Batch {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, Batch{Start: start, End: end})
	}
	return out
}
