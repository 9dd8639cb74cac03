package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/Aleph-Alpha/vectorstores/v1/loader"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

var loadBatchSize int

var loadCmd = &cobra.Command{
	Use:   "load <location>...",
	Short: "Embed and store JSON-lines documents",
	Long: `Load documents of the form {"id": "...", "text": "...", "metadata": {...}}
from local files or from an object store. A location ending in "/" loads every
.jsonl and .ndjson object under that prefix.

Examples:
  vectorctl load docs.jsonl
  vectorctl load s3://corpus/handbook.jsonl s3://corpus/faq/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0, "documents per embedding and write round trip (default from config)")
}

// documentAdder is the part of the store the loader writes through.
type documentAdder interface {
	AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var objects *loader.ObjectClient
	if hasObjectLocation(args) {
		if cfg.ObjectStore == nil {
			return fmt.Errorf("s3:// locations need an object_store section in the config")
		}
		var err error
		objects, err = loader.NewObjectClient(ctx, *cfg.ObjectStore)
		if err != nil {
			return err
		}
		objects.WithLogger(appLogger)
	}

	s, err := openSession(ctx, cfg, appLogger, true)
	if err != nil {
		return err
	}
	defer s.Close()
	if objects != nil {
		objects.WithObserver(s.metrics)
	}

	sources, err := resolveSources(ctx, args, objects)
	if err != nil {
		return err
	}

	batchSize := loadBatchSize
	if batchSize <= 0 {
		batchSize = configuredBatchSize(cfg)
	}

	total := 0
	for _, src := range sources {
		docs, err := loader.Load(ctx, src)
		if err != nil {
			return err
		}

		bar := newProgressBar(len(docs), src.String())
		ids, err := addInBatches(ctx, s.store, loader.ToSchemaDocuments(docs), batchSize, func(n int) {
			_ = bar.Add(n)
		})
		total += len(ids)
		if err != nil {
			return fmt.Errorf("failed to load %s after %d documents: %w", src, len(ids), err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d documents from %d sources\n", total, len(sources))
	return nil
}

func hasObjectLocation(locations []string) bool {
	for _, l := range locations {
		if strings.HasPrefix(l, "s3://") {
			return true
		}
	}
	return false
}

// resolveSources expands prefix locations (s3://bucket/dir/) into one source
// per object.
func resolveSources(ctx context.Context, locations []string, objects *loader.ObjectClient) ([]loader.Source, error) {
	var sources []loader.Source
	for _, location := range locations {
		if strings.HasPrefix(location, "s3://") && strings.HasSuffix(location, "/") {
			if objects == nil {
				return nil, fmt.Errorf("object location %q needs an object store configuration", location)
			}
			bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
			keys, err := objects.List(ctx, bucket, prefix)
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				sources = append(sources, loader.ObjectSource{Client: objects, Bucket: bucket, Key: key})
			}
			continue
		}

		src, err := loader.ParseLocation(location, objects)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// addInBatches writes docs in slices of size and reports each finished slice.
// The returned ids cover every document written before a failure.
func addInBatches(ctx context.Context, store documentAdder, docs []schema.Document, size int, progress func(int)) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, b := range vectorstore.Batches(len(docs), size) {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		batchIDs, err := store.AddDocuments(ctx, docs[b.Start:b.End])
		if err != nil {
			return ids, err
		}
		ids = append(ids, batchIDs...)
		if progress != nil {
			progress(b.End - b.Start)
		}
	}
	return ids, nil
}

func configuredBatchSize(c *Config) int {
	if c.Backend == BackendMongoVCore {
		return c.MongoVCore.BatchSize
	}
	return c.Pgvector.BatchSize
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}
