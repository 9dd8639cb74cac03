// Package embedding provides an embeddings.Embedder for Azure AI model
// inference and other OpenAI compatible /embeddings endpoints.
//
// The vector store adapters never call a model themselves; they take any
// langchaingo embeddings.Embedder. This package is the implementation used by
// vectorctl and by services that do not bring their own.
//
//	cfg := embedding.NewConfig() // AZURE_INFERENCE_ENDPOINT, AZURE_INFERENCE_CREDENTIAL, ...
//	client, err := embedding.NewClient(cfg)
//	if err != nil {
//		return err
//	}
//	vectors, err := client.EmbedDocuments(ctx, texts)
//
// EmbedDocuments splits its input into BatchSize chunks and sends up to
// Concurrency requests at a time. Documents are sent with input_type
// "document", queries with input_type "query".
//
// MockEmbedder is a gomock implementation for tests.
package embedding
