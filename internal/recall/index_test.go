package recall

import (
	"context"
	"testing"
	"time"

	"github.com/xiy/triage-agent/internal/embeddings"
	"github.com/xiy/triage-agent/pkg/types"
)

func TestIndex_EmptySearchReturnsNothing(t *testing.T) {
	t.Parallel()
	ix := New(embeddings.Local())

	got, err := ix.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result from empty index, got %d", len(got))
	}
}

func TestIndex_RebuildAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := New(embeddings.Local())

	now := time.Now().UTC()
	entries := []types.MemoryEntry{
		{ID: 1, Content: "user works in the finance department", Timestamp: now, IsArchived: true},
		{ID: 2, Content: "user prefers email over phone calls", Timestamp: now, IsArchived: true},
		{ID: 3, Content: "laptop model is a ThinkPad X1", Timestamp: now, IsArchived: true},
	}
	if err := ix.Rebuild(ctx, entries); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if ix.Size() != 3 {
		t.Fatalf("expected 3 indexed entries, got %d", ix.Size())
	}

	got, err := ix.Search(ctx, "which department does the user work in", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != 1 {
		t.Fatalf("expected department memory ranked first, got id=%d", got[0].ID)
	}
}

func TestIndex_RebuildWithEmptySetClearsIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := New(embeddings.Local())

	if err := ix.Rebuild(ctx, []types.MemoryEntry{{ID: 1, Content: "something"}}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if err := ix.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild(nil) error = %v", err)
	}
	if ix.Size() != 0 {
		t.Fatalf("expected empty index after rebuild with no entries, got %d", ix.Size())
	}

	got, err := ix.Search(ctx, "something", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results after clearing rebuild, got %d", len(got))
	}
}

func TestIndex_SearchClampsToIndexSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := New(embeddings.Local())

	if err := ix.Rebuild(ctx, []types.MemoryEntry{{ID: 7, Content: "only one entry"}}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	got, err := ix.Search(ctx, "entry", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected clamped single result, got %d", len(got))
	}
}
