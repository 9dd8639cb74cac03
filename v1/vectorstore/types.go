package vectorstore

import (
	"fmt"
	"strings"
)

// IDKey is the metadata key carrying a document's id on documents returned
// by the store, and the key ResolveIDs reads ids from on input.
const IDKey = "id"

// DistanceStrategy selects the similarity metric of a table or collection.
type DistanceStrategy string

const (
	Cosine       DistanceStrategy = "cosine"
	Euclidean    DistanceStrategy = "euclidean"
	InnerProduct DistanceStrategy = "inner_product"
)

// ParseDistanceStrategy accepts the canonical names and the common aliases
// used by the backends (COS, L2, IP, dot).
func ParseDistanceStrategy(s string) (DistanceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cos":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	case "inner_product", "innerproduct", "ip", "dot", "max_inner_product":
		return InnerProduct, nil
	}
	return "", fmt.Errorf("%w: unknown distance strategy %q", ErrInvalidInput, s)
}

// ScoreKind tells whether a backend's raw score grows with distance or with similarity.
type ScoreKind int

const (
	// ScoreDistance: lower is closer (pgvector operators).
	ScoreDistance ScoreKind = iota
	// ScoreSimilarity: higher is closer (Cosmos DB searchScore for COS and IP).
	ScoreSimilarity
)

// IndexKind is a vector index algorithm implemented by the backend.
type IndexKind string

const (
	IVF     IndexKind = "ivf"
	HNSW    IndexKind = "hnsw"
	DiskANN IndexKind = "diskann"

	// Text is a full-text index on the document content. It takes no
	// parameters and is only created by backends implementing TextSearcher.
	Text IndexKind = "text"
)

// IndexParams describes a vector index. Only the fields of the selected Kind
// are used.
type IndexParams struct {
	Kind IndexKind `yaml:"kind" json:"kind"`

	// Name overrides the backend's default index name.
	Name string `yaml:"name" json:"name,omitempty"`

	// IVF: number of clusters.
	Lists int `yaml:"lists" json:"lists,omitempty"`

	// HNSW: max connections per layer and build-time candidate list size.
	M              int `yaml:"m" json:"m,omitempty"`
	EfConstruction int `yaml:"ef_construction" json:"efConstruction,omitempty"`

	// DiskANN: graph degree and build-time search list size.
	MaxDegree int `yaml:"max_degree" json:"maxDegree,omitempty"`
	LBuild    int `yaml:"l_build" json:"lBuild,omitempty"`

	// Dimensions of the indexed vectors. Backends fill this from their config when zero.
	Dimensions int `yaml:"dimensions" json:"dimensions,omitempty"`
}

// DefaultIndexParams returns the parameters the backends document as sensible defaults.
func DefaultIndexParams(kind IndexKind) IndexParams {
	switch kind {
	case IVF:
		return IndexParams{Kind: IVF, Lists: 100}
	case HNSW:
		return IndexParams{Kind: HNSW, M: 16, EfConstruction: 64}
	case DiskANN:
		return IndexParams{Kind: DiskANN, MaxDegree: 32, LBuild: 50}
	}
	return IndexParams{Kind: kind}
}

// Validate checks that the fields of the selected kind are in range.
func (p IndexParams) Validate() error {
	switch p.Kind {
	case IVF:
		if p.Lists < 1 {
			return fmt.Errorf("%w: ivf lists must be >= 1, got %d", ErrInvalidInput, p.Lists)
		}
	case HNSW:
		if p.M < 2 || p.M > 100 {
			return fmt.Errorf("%w: hnsw m must be in [2,100], got %d", ErrInvalidInput, p.M)
		}
		if p.EfConstruction < 4 || p.EfConstruction > 1000 {
			return fmt.Errorf("%w: hnsw ef_construction must be in [4,1000], got %d", ErrInvalidInput, p.EfConstruction)
		}
		if p.EfConstruction < 2*p.M {
			return fmt.Errorf("%w: hnsw ef_construction must be at least 2*m", ErrInvalidInput)
		}
	case DiskANN:
		if p.MaxDegree < 20 || p.MaxDegree > 2048 {
			return fmt.Errorf("%w: diskann max_degree must be in [20,2048], got %d", ErrInvalidInput, p.MaxDegree)
		}
		if p.LBuild < 10 || p.LBuild > 500 {
			return fmt.Errorf("%w: diskann l_build must be in [10,500], got %d", ErrInvalidInput, p.LBuild)
		}
	case Text:
	default:
		return fmt.Errorf("%w: unknown index kind %q", ErrInvalidInput, p.Kind)
	}
	if p.Dimensions < 0 {
		return fmt.Errorf("%w: negative dimensions", ErrInvalidInput)
	}
	return nil
}

// SearchParams are query-time knobs of the vector index. Zero values leave
// the backend default in place.
type SearchParams struct {
	// Probes is the number of IVF lists scanned.
	Probes int `yaml:"probes" json:"probes,omitempty"`
	// EfSearch is the HNSW candidate list size.
	EfSearch int `yaml:"ef_search" json:"efSearch,omitempty"`
	// LSearch is the DiskANN search list size.
	LSearch int `yaml:"l_search" json:"lSearch,omitempty"`
}

// IsZero reports whether no knob is set.
func (p SearchParams) IsZero() bool {
	return p.Probes == 0 && p.EfSearch == 0 && p.LSearch == 0
}

// Record is a document as stored by a backend.
type Record struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// SearchResult is a Record with the backend's raw score.
type SearchResult struct {
	Record
	Score float32
}

// Query is the backend-level similarity query.
type Query struct {
	Vector        []float32
	K             int
	Filter        *FilterSet
	Params        SearchParams
	WithEmbedding bool
}

// TextQuery is the backend-level full-text query. Text may hold words,
// "quoted phrases" and -negated words. Postgres requires every word to
// match, MongoDB any of them.
type TextQuery struct {
	Text          string
	K             int
	Filter        *FilterSet
	WithEmbedding bool
}

// BackendInfo describes a backend to the Store.
type BackendInfo struct {
	// Component names the adapter, e.g. "pgvector".
	Component string
	// Resource is the table or collection.
	Resource   string
	Distance   DistanceStrategy
	ScoreKind  ScoreKind
	Dimensions int
}
