package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

var (
	indexKind           string
	indexName           string
	indexLists          int
	indexM              int
	indexEfConstruction int
	indexMaxDegree      int
	indexLBuild         int
)

var createIndexCmd = &cobra.Command{
	Use:   "create-index",
	Short: "Create the vector index",
	Long: `Create an IVF, HNSW or DiskANN index on the embedding column.
Parameters that are not given use the documented defaults of the kind.

Examples:
  vectorctl create-index --kind hnsw --m 32
  vectorctl create-index --kind ivf --lists 200
  vectorctl create-index --kind text`,
	RunE: runCreateIndex,
}

var dropIndexCmd = &cobra.Command{
	Use:   "drop-index",
	Short: "Drop the vector index",
	RunE:  runDropIndex,
}

func init() {
	rootCmd.AddCommand(createIndexCmd)
	createIndexCmd.Flags().StringVar(&indexKind, "kind", string(vectorstore.HNSW), "index kind: ivf, hnsw, diskann or text")
	createIndexCmd.Flags().StringVar(&indexName, "name", "", "index name (default from the backend)")
	createIndexCmd.Flags().IntVar(&indexLists, "lists", 0, "ivf: number of lists")
	createIndexCmd.Flags().IntVar(&indexM, "m", 0, "hnsw: connections per layer")
	createIndexCmd.Flags().IntVar(&indexEfConstruction, "ef-construction", 0, "hnsw: build candidate list size")
	createIndexCmd.Flags().IntVar(&indexMaxDegree, "max-degree", 0, "diskann: graph degree")
	createIndexCmd.Flags().IntVar(&indexLBuild, "l-build", 0, "diskann: build search list size")

	rootCmd.AddCommand(dropIndexCmd)
	dropIndexCmd.Flags().StringVar(&indexName, "name", "", "index name (default from the backend)")
}

// indexParams starts from the defaults of kind and applies the flags the
// user changed.
func indexParams(cmd *cobra.Command, kind string) (vectorstore.IndexParams, error) {
	flags := cmd.Flags()
	p := vectorstore.DefaultIndexParams(vectorstore.IndexKind(kind))
	p.Name = indexName

	overrides := map[string]*int{
		"lists":           &p.Lists,
		"m":               &p.M,
		"ef-construction": &p.EfConstruction,
		"max-degree":      &p.MaxDegree,
		"l-build":         &p.LBuild,
	}
	for name, field := range overrides {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			if err != nil {
				return p, err
			}
			*field = v
		}
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func runCreateIndex(cmd *cobra.Command, args []string) error {
	params, err := indexParams(cmd, indexKind)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.CreateIndex(ctx, params); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s index on %s\n", params.Kind, s.store.Backend().Info().Resource)
	return nil
}

func runDropIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.DropIndex(ctx, indexName); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Index dropped")
	return nil
}
