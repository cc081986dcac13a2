// Package kb loads a directory of plain-text knowledge documents into an
// in-memory vector collection and retrieves the closest fragments for a
// query. The collection is built once at startup and is read-only after.
package kb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/xiy/triage-agent/pkg/types"
)

const collectionName = "knowledge"

// Retriever answers similarity queries over the loaded knowledge base.
type Retriever struct {
	col  *chromem.Collection
	docs int
}

// Load reads every .md and .txt file under dir (recursively), splits each
// into paragraph chunks, and indexes them. A configured directory that
// yields zero documents is an error: a triage agent with an empty
// knowledge base answers from nothing, which is worse than failing fast.
func Load(ctx context.Context, dir string, embed chromem.EmbeddingFunc) (*Retriever, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create knowledge collection: %w", err)
	}

	var docs []chromem.Document
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			rel = filepath.Base(path)
		}
		for i, chunk := range splitChunks(string(raw)) {
			docs = append(docs, chromem.Document{
				ID:      rel + "#" + strconv.Itoa(i),
				Content: chunk,
				Metadata: map[string]string{
					"source": rel,
					"chunk":  strconv.Itoa(i),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge dir %s: %w", dir, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("knowledge dir %s contains no .md or .txt documents", dir)
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("index knowledge documents: %w", err)
	}
	return &Retriever{col: col, docs: len(docs)}, nil
}

// Search returns up to k fragments most similar to query, best first.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]types.Document, error) {
	if r == nil || r.col == nil || k <= 0 {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if n := r.col.Count(); k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := r.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	out := make([]types.Document, 0, len(results))
	for _, res := range results {
		out = append(out, types.Document{Content: res.Content, Metadata: res.Metadata})
	}
	return out, nil
}

// Size reports the indexed chunk count.
func (r *Retriever) Size() int {
	if r == nil {
		return 0
	}
	return r.docs
}

// splitChunks breaks a document on blank lines, dropping empty chunks.
// Oversized paragraphs are kept whole; the embedder truncates internally.
func splitChunks(text string) []string {
	var chunks []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks
}
