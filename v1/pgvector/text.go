package pgvector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

var _ vectorstore.TextSearcher = (*Backend)(nil)

// TextIndexName returns the name of the full-text index: <table>_content_tsv_idx.
func TextIndexName(table string) string {
	return table + "_content_tsv_idx"
}

// tsvector renders the document expression of the text index. Queries repeat
// it verbatim so the planner can match them to the index. cfg is validated
// to be a lowercase word, so it is safe to inline.
func tsvector(cfg string) string {
	return "to_tsvector('" + cfg + "'::regconfig, coalesce(content, ''))"
}

// SearchText ranks rows by ts_rank_cd of their content against a web search
// style query (words, "phrases", -excluded words).
func (b *Backend) SearchText(ctx context.Context, q vectorstore.TextQuery) (results []vectorstore.SearchResult, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("text_query", "", start, err, int64(len(results)), map[string]interface{}{"k": q.K})
	}()

	query, args, err := buildTextSearch(b.table, b.cfg.TextSearchConfig, q)
	if err != nil {
		return nil, err
	}

	rows, err := b.db(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, TranslateError(fmt.Errorf("full-text query failed: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var r vectorstore.SearchResult
		if err := scanRecord(rows, &r.Record, q.WithEmbedding, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateError(err)
	}
	return results, nil
}

func buildTextSearch(table, textConfig string, q vectorstore.TextQuery) (string, []any, error) {
	where, whereArgs, err := buildWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}

	columns := "id, content, metadata"
	if q.WithEmbedding {
		columns += ", embedding"
	}
	doc := tsvector(textConfig)
	tsquery := "websearch_to_tsquery('" + textConfig + "'::regconfig, ?)"

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, ts_rank_cd(%s, %s) AS score FROM %s WHERE %s @@ %s",
		columns, doc, tsquery, table, doc, tsquery)
	args := []any{q.Text, q.Text}
	if where != "" {
		sb.WriteString(" AND (")
		sb.WriteString(where)
		sb.WriteString(")")
		args = append(args, whereArgs...)
	}
	sb.WriteString(" ORDER BY score DESC, id LIMIT ?")
	args = append(args, q.K)
	return sb.String(), args, nil
}

// createTextIndex builds the GIN index that SearchText queries use.
func (b *Backend) createTextIndex(ctx context.Context, name string) error {
	if err := b.db(ctx).Exec(buildCreateTextIndex(b.cfg, name)).Error; err != nil {
		return TranslateError(fmt.Errorf("failed to create index %s: %w", name, err))
	}
	b.logInfo("Created text index", map[string]interface{}{"index": name, "config": b.cfg.TextSearchConfig})
	return nil
}

func buildCreateTextIndex(cfg Config, name string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s USING gin (%s)",
		pq.QuoteIdentifier(name), qualifiedTable(cfg), tsvector(cfg.TextSearchConfig))
}
