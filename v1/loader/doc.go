// Package loader reads documents to index from JSON-lines files, either on
// the local filesystem or in a MinIO / S3 compatible bucket.
//
// Each line holds one document:
//
//	{"id": "handbook-1", "text": "Employees get 30 days of vacation.", "metadata": {"source": "handbook.pdf", "page": 4}}
//
// Example:
//
//	src, err := loader.ParseLocation("s3://corpus/handbook.jsonl", objectClient)
//	docs, err := loader.Load(ctx, src)
//	ids, err := store.AddDocuments(ctx, loader.ToSchemaDocuments(docs))
package loader
