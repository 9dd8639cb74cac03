package pgvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

func TestBuildTextSearch(t *testing.T) {
	q := vectorstore.TextQuery{
		Text:   `"parental leave" -draft`,
		K:      3,
		Filter: vectorstore.NewFilterSet(vectorstore.Must(vectorstore.NewMatch("lang", "en"))),
	}

	sql, args, err := buildTextSearch(`"public"."docs"`, "english", q)
	require.NoError(t, err)
	doc := "to_tsvector('english'::regconfig, coalesce(content, ''))"
	query := "websearch_to_tsquery('english'::regconfig, ?)"
	assert.Equal(t, "SELECT id, content, metadata, ts_rank_cd("+doc+", "+query+`) AS score FROM "public"."docs" WHERE `+
		doc+" @@ "+query+" AND ((metadata -> 'lang' = ?::jsonb)) ORDER BY score DESC, id LIMIT ?", sql)
	assert.Equal(t, []any{q.Text, q.Text, `"en"`, 3}, args)
}

func TestBuildTextSearch_WithEmbeddingAndNoFilter(t *testing.T) {
	sql, args, err := buildTextSearch("t", "simple", vectorstore.TextQuery{Text: "x", K: 1, WithEmbedding: true})
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT id, content, metadata, embedding, ts_rank_cd(")
	assert.NotContains(t, sql, " AND (")
	assert.Len(t, args, 3)

	_, _, err = buildTextSearch("t", "simple", vectorstore.TextQuery{
		Text:   "x",
		K:      1,
		Filter: vectorstore.NewFilterSet(vectorstore.Must(vectorstore.NewMatch("bad field", 1))),
	})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
}

func TestBuildCreateTextIndex(t *testing.T) {
	cfg := DefaultConfig().WithTable("docs").WithTextSearchConfig("german")

	ddl := buildCreateTextIndex(cfg, TextIndexName(cfg.Table))
	assert.Equal(t, `CREATE INDEX "docs_content_tsv_idx" ON "public"."docs" USING gin (to_tsvector('german'::regconfig, coalesce(content, '')))`, ddl)
}
