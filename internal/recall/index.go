package recall

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/xiy/triage-agent/pkg/types"
)

const collectionName = "archived-memories"

// Index is the semantic recall index over archived memory entries.
// It is a cache over the store, never a source of truth: every archival
// event discards the previous index and rebuilds from scratch.
type Index struct {
	embed   chromem.EmbeddingFunc
	col     *chromem.Collection
	entries map[int64]types.MemoryEntry
}

// New creates an empty index. Search on an empty index returns nothing.
func New(embed chromem.EmbeddingFunc) *Index {
	return &Index{embed: embed}
}

// Rebuild replaces the index contents with the given archived entries.
// The previous collection is discarded wholesale; there is no
// incremental update path.
func (ix *Index) Rebuild(ctx context.Context, entries []types.MemoryEntry) error {
	if len(entries) == 0 {
		ix.col = nil
		ix.entries = nil
		return nil
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, ix.embed)
	if err != nil {
		return fmt.Errorf("create recall collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(entries))
	byID := make(map[int64]types.MemoryEntry, len(entries))
	for _, entry := range entries {
		docs = append(docs, chromem.Document{
			ID:      strconv.FormatInt(entry.ID, 10),
			Content: entry.Content,
		})
		byID[entry.ID] = entry
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("index archived memories: %w", err)
	}

	ix.col = col
	ix.entries = byID
	return nil
}

// Search returns up to k archived entries most similar to the query,
// in index-rank order. An absent index yields an empty result.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]types.MemoryEntry, error) {
	if ix.col == nil || k <= 0 {
		return nil, nil
	}
	if n := ix.col.Count(); k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := ix.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query recall index: %w", err)
	}

	matches := make([]types.MemoryEntry, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseInt(res.ID, 10, 64)
		if err != nil {
			continue
		}
		if entry, ok := ix.entries[id]; ok {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// Size reports how many archived entries are currently indexed.
func (ix *Index) Size() int {
	if ix.col == nil {
		return 0
	}
	return ix.col.Count()
}
