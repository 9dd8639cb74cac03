package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

var (
	searchQuery     string
	searchK         int
	searchFilter    string
	searchMMR       bool
	searchFetchK    int
	searchLambda    float64
	searchThreshold float64
	searchRelevance bool
	searchJSON      bool
	searchMode      string
)

// Search modes of the --mode flag.
const (
	modeVector = "vector"
	modeText   = "text"
	modeHybrid = "hybrid"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the store by similarity or full text",
	Long: `Embed the query and return the closest documents. Filters use the
dictionary grammar: {"field": value}, {"field": {"$gt": 1}}, {"$or": [...]}.

--mode text matches the query against the full-text index (create it with
create-index --kind text); --mode hybrid fuses the vector and text rankings
with reciprocal rank fusion, fetching --fetch-k candidates on each side.

Examples:
  vectorctl search -q "parental leave"
  vectorctl search -q "parental leave" -k 10 --filter '{"year": {"$gte": 2023}}'
  vectorctl search -q "parental leave" --mmr --fetch-k 40 --lambda 0.3 --json
  vectorctl search -q '"parental leave" -draft' --mode text
  vectorctl search -q "parental leave" --mode hybrid --fetch-k 50`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchK, "top-k", "k", 4, "number of results")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "metadata filter as a JSON dictionary")
	searchCmd.Flags().BoolVar(&searchMMR, "mmr", false, "rerank candidates by maximal marginal relevance")
	searchCmd.Flags().StringVar(&searchMode, "mode", modeVector, "search mode: vector, text or hybrid")
	searchCmd.Flags().IntVar(&searchFetchK, "fetch-k", vectorstore.DefaultFetchK, "mmr and hybrid: number of candidates fetched")
	searchCmd.Flags().Float64Var(&searchLambda, "lambda", vectorstore.DefaultLambda, "mmr: 1 favours relevance, 0 favours diversity")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "drop results with a relevance score below this value")
	searchCmd.Flags().BoolVar(&searchRelevance, "relevance", false, "report relevance scores in [0, 1] instead of raw scores")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	_ = searchCmd.MarkFlagRequired("query")
}

// parseFilterFlag turns the --filter value into a FilterSet; an empty flag
// means no filter.
func parseFilterFlag(raw string) (*vectorstore.FilterSet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	fs, err := vectorstore.ParseFilterJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid --filter: %w", err)
	}
	return fs, nil
}

// validateSearchMode rejects unknown modes and flags that the mode ignores.
func validateSearchMode(mode string, mmr bool, threshold float64) error {
	switch mode {
	case modeVector:
		return nil
	case modeText, modeHybrid:
		if mmr {
			return fmt.Errorf("--mmr cannot be combined with --mode %s", mode)
		}
		if threshold > 0 {
			return fmt.Errorf("--threshold cannot be combined with --mode %s", mode)
		}
		return nil
	}
	return fmt.Errorf("unknown --mode %q: want vector, text or hybrid", mode)
}

func runSearch(cmd *cobra.Command, args []string) error {
	filter, err := parseFilterFlag(searchFilter)
	if err != nil {
		return err
	}
	if searchThreshold < 0 || searchThreshold > 1 {
		return fmt.Errorf("--threshold must be in [0, 1], got %v", searchThreshold)
	}
	if err := validateSearchMode(searchMode, searchMMR, searchThreshold); err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, searchMode != modeText)
	if err != nil {
		return err
	}
	defer s.Close()

	var docs []schema.Document
	switch {
	case searchMode == modeText:
		var opts []vectorstores.Option
		if filter != nil {
			opts = append(opts, vectorstore.WithSearchFilter(filter))
		}
		var results []vectorstore.SearchResult
		results, err = s.store.FullTextSearch(ctx, searchQuery, searchK, opts...)
		docs = vectorstore.ToDocuments(results)
	case searchMode == modeHybrid:
		var results []vectorstore.SearchResult
		results, err = s.store.HybridSearch(ctx, vectorstore.SearchRequest{
			Query:  searchQuery,
			K:      searchK,
			Filter: filter,
		}, searchFetchK)
		docs = vectorstore.ToDocuments(results)
	case searchMMR:
		var opts []vectorstores.Option
		if filter != nil {
			opts = append(opts, vectorstore.WithSearchFilter(filter))
		}
		if searchThreshold > 0 {
			opts = append(opts, vectorstores.WithScoreThreshold(float32(searchThreshold)))
		}
		docs, err = s.store.MaxMarginalRelevanceSearch(ctx, searchQuery, searchK, searchFetchK, searchLambda, opts...)
	default:
		var results []vectorstore.SearchResult
		results, err = s.store.Search(ctx, vectorstore.SearchRequest{
			Query:          searchQuery,
			K:              searchK,
			Filter:         filter,
			ScoreThreshold: float32(searchThreshold),
			Relevance:      searchRelevance,
		})
		docs = vectorstore.ToDocuments(results)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return writeJSON(cmd.OutOrStdout(), toRows(docs))
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Found %d results for: %s\n\n", len(docs), searchQuery)
	writeRows(cmd.OutOrStdout(), toRows(docs), true)
	return nil
}
