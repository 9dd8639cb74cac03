package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tmc/langchaingo/schema"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// ErrInvalidDocument is returned for lines that are not valid documents.
var ErrInvalidDocument = errors.New("invalid document")

// Document is one line of a JSON-lines file:
//
//	{"id": "doc-1", "text": "...", "metadata": {"source": "handbook.pdf"}}
//
// id and metadata are optional.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Decode calls fn for every document in r. Blank lines are skipped. Lines
// may be arbitrarily long.
func Decode(r io.Reader, fn func(Document) error) error {
	br := bufio.NewReader(r)
	for line := 1; ; line++ {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read line %d: %w", line, readErr)
		}

		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			var doc Document
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, line, err)
			}
			if doc.Text == "" {
				return fmt.Errorf("%w: line %d: text is empty", ErrInvalidDocument, line)
			}
			if err := fn(doc); err != nil {
				return err
			}
		}

		if readErr != nil {
			return nil
		}
	}
}

// ReadAll decodes every document in r.
func ReadAll(r io.Reader) ([]Document, error) {
	var docs []Document
	err := Decode(r, func(d Document) error {
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

// ToSchemaDocuments converts docs for Store.AddDocuments. A document id is
// carried in the metadata under vectorstore.IDKey.
func ToSchemaDocuments(docs []Document) []schema.Document {
	out := make([]schema.Document, len(docs))
	for i, d := range docs {
		meta := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		if d.ID != "" {
			meta[vectorstore.IDKey] = d.ID
		}
		out[i] = schema.Document{PageContent: d.Text, Metadata: meta}
	}
	return out
}
