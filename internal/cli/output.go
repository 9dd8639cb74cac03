package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

const previewLength = 200

// row is the printed form of a document.
type row struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// toRows moves the id out of the metadata, where the store puts it.
func toRows(docs []schema.Document) []row {
	rows := make([]row, len(docs))
	for i, d := range docs {
		meta := maps.Clone(d.Metadata)
		id, _ := meta[vectorstore.IDKey].(string)
		delete(meta, vectorstore.IDKey)
		if len(meta) == 0 {
			meta = nil
		}
		rows[i] = row{ID: id, Score: d.Score, Content: d.PageContent, Metadata: meta}
	}
	return rows
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRows(w io.Writer, rows []row, withScore bool) {
	for i, r := range rows {
		if withScore {
			fmt.Fprintf(w, "%d. %s (score: %.4f)\n", i+1, r.ID, r.Score)
		} else {
			fmt.Fprintf(w, "%d. %s\n", i+1, r.ID)
		}
		if len(r.Metadata) > 0 {
			meta, _ := json.Marshal(r.Metadata)
			fmt.Fprintf(w, "   metadata: %s\n", meta)
		}
		fmt.Fprintf(w, "   %s\n\n", preview(r.Content))
	}
}

// preview shortens text to previewLength runes on a single line.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
