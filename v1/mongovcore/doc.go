/*
Package mongovcore stores documents and embeddings in Azure Cosmos DB for
MongoDB vCore and searches them with the cosmosSearch aggregation stage.

Each document is stored as

	{
	  "_id":           "<id>",
	  "textContent":   "<page content>",
	  "vectorContent": [0.12, -0.03, ...],
	  "metadata":      { ... }
	}

The three field names are configurable through Config.TextKey,
Config.EmbeddingKey and Config.MetadataKey.

Basic Usage:

	cfg := mongovcore.DefaultConfig().
		WithConnectionString(os.Getenv("MONGO_VCORE_CONNECTION_STRING")).
		WithNamespace("rag", "handbook").
		WithEmbeddingLength(1536)

	store, err := mongovcore.New(cfg, embedder)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateIndex(ctx, vectorstore.DefaultIndexParams(vectorstore.HNSW)); err != nil &&
		!errors.Is(err, vectorstore.ErrIndexExists) {
		return err
	}

	docs, err := store.SimilaritySearch(ctx, "vacation policy", 4,
		vectorstores.WithFilters(map[string]any{"lang": "en"}))

Connection strings:

When Config.ConnectionString is empty, one is built from Host, User and
Password with the options vCore requires:

	mongodb+srv://<user>:<password>@<host>/?tls=true&authMechanism=SCRAM-SHA-256&retrywrites=false&maxIdleTimeMS=120000

Filters:

Metadata filters are translated to MongoDB query operators below the metadata
key, so {"lang": "en"} becomes {"metadata.lang": {"$eq": "en"}}. LIKE patterns
become anchored regular expressions. Fields used in filters should have a
regular index, see Backend.CreateFilterIndex.

Indexes:

CreateIndex issues a createIndexes command with cosmosSearchOptions of kind
vector-ivf, vector-hnsw or vector-diskann. Query-time knobs (nProbes,
efSearch, lSearch) come from vectorstore.SearchParams.

FX Module Integration:

	app := fx.New(
		logger.FXModule,
		fx.Provide(func() mongovcore.Config { return cfg }),
		mongovcore.FXModule,
	)
*/
package mongovcore
