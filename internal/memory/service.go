package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/internal/store"
	"github.com/xiy/triage-agent/pkg/types"
)

// defaultImportance is assigned when scoring fails after the content
// filter already confirmed personal information: assume important.
const defaultImportance = 7.0

// Extractor classifies user text and scores extracted facts.
type Extractor interface {
	ExtractPersonal(ctx context.Context, userText string) (string, bool, error)
	ScoreImportance(ctx context.Context, summary string) (float64, error)
}

// Recaller is the semantic index over archived entries.
type Recaller interface {
	Rebuild(ctx context.Context, entries []types.MemoryEntry) error
	Search(ctx context.Context, query string, k int) ([]types.MemoryEntry, error)
	Size() int
}

// Service owns the active/archive memory lifecycle: filtered writes,
// consolidation, and context assembly for prompts.
type Service struct {
	store  store.Store
	oracle Extractor
	index  Recaller
	cfg    config.Config
	logger *log.Logger
}

// NewService constructs a memory service.
func NewService(st store.Store, oracle Extractor, index Recaller, cfg config.Config, logger *log.Logger) *Service {
	return &Service{store: st, oracle: oracle, index: index, cfg: cfg, logger: logger}
}

// RecordInteraction runs the filter-then-score pipeline for one exchange.
// Non-personal text produces no entry and returns (nil, nil); that is a
// filter outcome, not a failure. Oracle failures degrade rather than
// aborting the turn.
func (s *Service) RecordInteraction(ctx context.Context, userText, assistantText string, metadata map[string]any) (*types.MemoryEntry, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, nil
	}

	summary, found, err := s.oracle.ExtractPersonal(ctx, userText)
	if err != nil {
		s.logger.Warn("personal-content extraction failed, skipping memory", "error", err)
		return nil, nil
	}
	if !found {
		s.logger.Debug("no personal content, nothing stored")
		return nil, nil
	}

	score, err := s.oracle.ScoreImportance(ctx, summary)
	if err != nil {
		s.logger.Warn("importance scoring failed, using default", "default", defaultImportance, "error", err)
		score = defaultImportance
	}

	entry := types.MemoryEntry{
		Content:         summary,
		Timestamp:       time.Now().UTC(),
		ImportanceScore: score,
		MemoryType:      types.MemoryTypePreference,
		IsArchived:      false,
		Metadata:        metadata,
	}
	if excerpt := strings.TrimSpace(assistantText); excerpt != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["assistant_excerpt"] = truncate(excerpt, 160)
	}

	id, err := s.store.Insert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	entry.ID = id

	if err := s.consolidate(ctx); err != nil {
		s.logger.Warn("consolidation failed", "error", err)
	}

	return &entry, nil
}

// GetContext returns the active memories (newest first, at most maxCount)
// and up to floor(maxCount/2) semantically recalled archived memories.
// Recall failures are swallowed: the caller gets an empty recall set.
func (s *Service) GetContext(ctx context.Context, query string, maxCount int) (active, recalled []types.MemoryEntry, err error) {
	if maxCount <= 0 {
		maxCount = s.cfg.MemoryContextCount
	}

	active, err = s.store.ListActive(ctx, maxCount)
	if err != nil {
		return nil, nil, fmt.Errorf("list active memories: %w", err)
	}

	recalled, rerr := s.index.Search(ctx, query, maxCount/2)
	if rerr != nil {
		s.logger.Warn("archive recall failed, continuing without it", "error", rerr)
		recalled = nil
	}
	return active, recalled, nil
}

// Stats derives current memory statistics. Always a pure function of
// store contents; never cached.
func (s *Service) Stats(ctx context.Context) (types.MemoryStats, error) {
	var st types.MemoryStats

	activeCount, err := s.store.Count(ctx, false)
	if err != nil {
		return st, err
	}
	archivedCount, err := s.store.Count(ctx, true)
	if err != nil {
		return st, err
	}

	active, err := s.store.ListActive(ctx, 0)
	if err != nil {
		return st, err
	}
	tokens := 0
	for _, entry := range active {
		tokens += estimateTokens(entry.Content)
	}

	st.ActiveCount = activeCount
	st.ArchivedCount = archivedCount
	st.TotalCount = activeCount + archivedCount
	st.ActiveTokenEstimate = tokens
	st.ContextUtilization = float64(tokens) / float64(s.cfg.MaxContextLength)
	return st, nil
}

// IndexSize reports the archived entry count currently indexed for recall.
func (s *Service) IndexSize() int {
	return s.index.Size()
}

// ClearAll wipes the store and the recall index.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	if err := s.index.Rebuild(ctx, nil); err != nil {
		s.logger.Warn("recall index reset failed", "error", err)
	}
	return nil
}

// FormatForPrompt renders memory context for prompt injection: recalled
// entries first in index-rank order, then active entries oldest-first.
// Storage order is newest-first; the prompt flips active entries so the
// model reads them chronologically.
func (s *Service) FormatForPrompt(active, recalled []types.MemoryEntry) string {
	if len(active) == 0 && len(recalled) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(recalled) > 0 {
		sb.WriteString("Relevant past context:\n")
		for _, entry := range recalled {
			fmt.Fprintf(&sb, "- %s\n", entry.Content)
		}
	}
	if len(active) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Recent memories:\n")
		for i := len(active) - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "- %s\n", active[i].Content)
		}
	}
	return sb.String()
}

// consolidate demotes active entries once capacity or token pressure is
// exceeded: low-importance entries first, then the oldest of what
// remains until the active set fits. Afterwards the recall index is
// rebuilt from the full archived set.
func (s *Service) consolidate(ctx context.Context) error {
	active, err := s.store.ListActive(ctx, 0)
	if err != nil {
		return fmt.Errorf("list active for consolidation: %w", err)
	}

	tokens := 0
	for _, entry := range active {
		tokens += estimateTokens(entry.Content)
	}
	overCount := len(active) > s.cfg.MaxActiveMemories
	overBudget := float64(tokens) > float64(s.cfg.MaxContextLength)*s.cfg.ConsolidationTrigger
	if !overCount && !overBudget {
		return nil
	}

	var candidates []types.MemoryEntry
	var remainder []types.MemoryEntry
	for _, entry := range active {
		if entry.ImportanceScore < s.cfg.ImportanceThreshold {
			candidates = append(candidates, entry)
		} else {
			remainder = append(remainder, entry)
		}
	}

	if len(remainder) > s.cfg.MaxActiveMemories {
		sort.Slice(remainder, func(i, j int) bool {
			return remainder[i].Timestamp.Before(remainder[j].Timestamp)
		})
		candidates = append(candidates, remainder[:len(remainder)-s.cfg.MaxActiveMemories]...)
	}

	if len(candidates) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(candidates))
	for _, entry := range candidates {
		ids = append(ids, entry.ID)
	}
	if err := s.store.Archive(ctx, ids); err != nil {
		return fmt.Errorf("archive candidates: %w", err)
	}
	s.logger.Info("consolidated memories", "archived", len(ids), "active_before", len(active))

	archived, err := s.store.ListArchived(ctx, 0)
	if err != nil {
		return fmt.Errorf("list archived for index rebuild: %w", err)
	}
	if err := s.index.Rebuild(ctx, archived); err != nil {
		// Recall stays empty until the next successful rebuild; never fatal.
		s.logger.Warn("recall index rebuild failed", "error", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit < 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// estimateTokens is a rough approximation for prompt budgeting.
func estimateTokens(s string) int {
	runes := len([]rune(s))
	t := int(math.Ceil(float64(runes) / 4.0))
	if t < 1 {
		return 1
	}
	return t
}
