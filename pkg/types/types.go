package types

import "time"

// MemoryType classifies how a memory entry was produced.
type MemoryType string

const (
	MemoryTypeInteraction MemoryType = "interaction"
	MemoryTypeFact        MemoryType = "fact"
	MemoryTypePreference  MemoryType = "preference"
)

// MemoryEntry represents one persisted memory item.
// Entries are immutable after insert except for the archived flag;
// they are never deleted individually, only bulk-cleared.
type MemoryEntry struct {
	ID              int64          `json:"id"`
	Content         string         `json:"content"`
	Timestamp       time.Time      `json:"timestamp"`
	ImportanceScore float64        `json:"importance_score"`
	MemoryType      MemoryType     `json:"memory_type"`
	IsArchived      bool           `json:"is_archived"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// MemoryStats summarizes current store contents. It is derived on demand
// and never persisted.
type MemoryStats struct {
	ActiveCount         int     `json:"active_count"`
	ArchivedCount       int     `json:"archived_count"`
	TotalCount          int     `json:"total_count"`
	ActiveTokenEstimate int     `json:"active_token_estimate"`
	ContextUtilization  float64 `json:"context_utilization"`
}

// Document is a retrieved knowledge-base fragment.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message roles used across the generation boundary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
