// Package vectorstore is the backend-agnostic layer of the adapters: the
// document and filter model, the Backend contract implemented by v1/pgvector
// and v1/mongovcore, and the Store that turns a Backend into a langchaingo
// vectorstores.VectorStore.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  Application / langchaingo chains                            │
//	└──────────────────────────┬───────────────────────────────────┘
//	                           │ vectorstores.VectorStore, Retriever
//	┌──────────────────────────▼───────────────────────────────────┐
//	│  vectorstore.Store                                           │
//	│  embedding, id resolution, batching, relevance, MMR          │
//	└──────────────────────────┬───────────────────────────────────┘
//	                           │ vectorstore.Backend
//	           ┌───────────────┴────────────────┐
//	┌──────────▼──────────┐          ┌──────────▼──────────┐
//	│  pgvector.Backend   │          │ mongovcore.Backend  │
//	│  SQL over JSONB     │          │ $search cosmosSearch│
//	└─────────────────────┘          └─────────────────────┘
//
// # Filters
//
// Pre-filters are applied by the database before vector ranking. They can be
// built in code:
//
//	f := vectorstore.NewFilterSet(
//	    vectorstore.Must(
//	        vectorstore.NewMatch("source", "handbook.pdf"),
//	        vectorstore.NewNumericRange("page", vectorstore.NumericRange{Gte: vectorstore.Float(3)}),
//	    ),
//	    vectorstore.MustNot(vectorstore.NewMatch("draft", true)),
//	)
//
// or parsed from a LangChain style dictionary:
//
//	f, err := vectorstore.ParseFilter(map[string]any{
//	    "source": "handbook.pdf",
//	    "page":   map[string]any{"$gte": 3},
//	})
//
// Both forms can be passed to vectorstores.WithFilters.
//
//	| Operator  | Condition               |
//	|-----------|-------------------------|
//	| $eq       | MatchCondition          |
//	| $ne       | NotMatchCondition       |
//	| $in       | MatchAnyCondition       |
//	| $nin      | MatchExceptCondition    |
//	| $lt..$gte | Numeric/Time/TextRange  |
//	| $between  | inclusive range         |
//	| $like     | LikeCondition           |
//	| $exists   | ExistsCondition         |
//	| $and/$or  | nested FilterSet        |
//
// # Scores
//
// Backends return raw scores (a distance for pgvector, a similarity for
// Cosmos DB), and SimilaritySearch passes them through unchanged.
// SimilaritySearchWithRelevanceScores reports relevance in [0, 1] computed by
// RelevanceScoreFn. Score thresholds are always compared against relevance.
package vectorstore
