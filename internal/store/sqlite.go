package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/xiy/triage-agent/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is RFC3339 with fixed-width nanoseconds. Timestamps are
// compared as TEXT by SQLite, and RFC3339Nano trims trailing zeros, so
// an older instant ("...00.5Z") can sort after a newer one
// ("...00.52Z"). Fixed width keeps lexicographic order equal to
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Stats summarizes database counters for the admin dashboard.
type Stats struct {
	Active   int64
	Archived int64
	Total    int64
}

// TurnLog captures one orchestration turn handled by the agent.
type TurnLog struct {
	ID            int64
	SessionID     string
	Phase         string
	UserQuery     string
	ResponseChars int
	MemoryWritten bool
	DurationMS    int64
	CreatedAt     time.Time
}

// Store represents persistence operations used by the memory service.
type Store interface {
	Insert(ctx context.Context, entry types.MemoryEntry) (int64, error)
	ListActive(ctx context.Context, limit int) ([]types.MemoryEntry, error)
	ListArchived(ctx context.Context, limit int) ([]types.MemoryEntry, error)
	Archive(ctx context.Context, ids []int64) error
	Count(ctx context.Context, archived bool) (int, error)
	ClearAll(ctx context.Context) error
	Close() error
}

// SQLiteStore is a SQLite-backed memory store.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLite opens and initializes the SQLite store.
func OpenSQLite(ctx context.Context, dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, stmt := range splitSQLStatements(schemaSQL) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run schema stmt: %w", err)
		}
	}
	return nil
}

func splitSQLStatements(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p+";")
	}
	return out
}

// Insert stores a new memory entry and returns its row id.
func (s *SQLiteStore) Insert(ctx context.Context, entry types.MemoryEntry) (int64, error) {
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	archived := 0
	if entry.IsArchived {
		archived = 1
	}

	const q = `INSERT INTO memories (
		content, timestamp, importance_score, memory_type, is_archived, metadata_json
	) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		entry.Content,
		entry.Timestamp.UTC().Format(timeLayout),
		entry.ImportanceScore,
		string(entry.MemoryType),
		archived,
		string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert memory id: %w", err)
	}
	return id, nil
}

// ListActive returns non-archived entries, newest first.
func (s *SQLiteStore) ListActive(ctx context.Context, limit int) ([]types.MemoryEntry, error) {
	return s.list(ctx, false, limit)
}

// ListArchived returns archived entries, newest first.
func (s *SQLiteStore) ListArchived(ctx context.Context, limit int) ([]types.MemoryEntry, error) {
	return s.list(ctx, true, limit)
}

func (s *SQLiteStore) list(ctx context.Context, archived bool, limit int) ([]types.MemoryEntry, error) {
	flag := 0
	if archived {
		flag = 1
	}
	q := `SELECT id, content, timestamp, importance_score, memory_type, is_archived, metadata_json
FROM memories
WHERE is_archived = ?
ORDER BY timestamp DESC, id DESC`
	args := []any{flag}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var items []types.MemoryEntry
	for rows.Next() {
		entry, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

// Archive flips is_archived for the given ids in one statement.
// No-op on an empty id set. The flag is never flipped back.
func (s *SQLiteStore) Archive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	q := fmt.Sprintf(`UPDATE memories SET is_archived = 1 WHERE id IN (%s)`, strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("archive memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive rows affected: %w", err)
	}
	s.logger.Debug("archived memories", "requested", len(ids), "updated", n)
	return nil
}

// Count returns the number of entries with the given archived flag.
func (s *SQLiteStore) Count(ctx context.Context, archived bool) (int, error) {
	flag := 0
	if archived {
		flag = 1
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE is_archived = ?`, flag).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// ClearAll removes every memory entry.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return nil
}

// Stats returns dashboard counters.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories`).Scan(&st.Total); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE is_archived = 0`).Scan(&st.Active); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE is_archived = 1`).Scan(&st.Archived); err != nil {
		return st, err
	}
	return st, nil
}

// InsertTurnLog stores one turn event for admin observability.
func (s *SQLiteStore) InsertTurnLog(ctx context.Context, rec TurnLog) error {
	ts := rec.CreatedAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	written := 0
	if rec.MemoryWritten {
		written = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO turn_log (
		session_id, phase, user_query, response_chars, memory_written, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		strings.TrimSpace(rec.Phase),
		rec.UserQuery,
		rec.ResponseChars,
		written,
		rec.DurationMS,
		ts.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert turn log: %w", err)
	}
	return nil
}

// RecentTurnLogs returns most recent turn events in newest-first order.
func (s *SQLiteStore) RecentTurnLogs(ctx context.Context, limit int) ([]TurnLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, phase, user_query, response_chars, memory_written, duration_ms, created_at
FROM turn_log
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list turn logs: %w", err)
	}
	defer rows.Close()

	items := make([]TurnLog, 0, limit)
	for rows.Next() {
		var (
			row            TurnLog
			writtenAsInt   int
			createdAtValue string
		)
		if err := rows.Scan(
			&row.ID,
			&row.SessionID,
			&row.Phase,
			&row.UserQuery,
			&row.ResponseChars,
			&writtenAsInt,
			&row.DurationMS,
			&createdAtValue,
		); err != nil {
			return nil, fmt.Errorf("scan turn log: %w", err)
		}
		row.MemoryWritten = writtenAsInt == 1
		if ts, err := time.Parse(time.RFC3339Nano, createdAtValue); err == nil {
			row.CreatedAt = ts
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// RecentMemories returns entries across both tiers in newest-first order.
func (s *SQLiteStore) RecentMemories(ctx context.Context, limit int) ([]types.MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, timestamp, importance_score, memory_type, is_archived, metadata_json
FROM memories
ORDER BY timestamp DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	defer rows.Close()

	items := make([]types.MemoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(sc scanner) (types.MemoryEntry, error) {
	var (
		entry         types.MemoryEntry
		memoryType    string
		archivedAsInt int
		timestamp     string
		metadataJSON  string
	)
	if err := sc.Scan(
		&entry.ID,
		&entry.Content,
		&timestamp,
		&entry.ImportanceScore,
		&memoryType,
		&archivedAsInt,
		&metadataJSON,
	); err != nil {
		return entry, fmt.Errorf("scan memory: %w", err)
	}

	entry.MemoryType = types.MemoryType(memoryType)
	entry.IsArchived = archivedAsInt == 1

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return entry, fmt.Errorf("parse memory timestamp: %w", err)
	}
	entry.Timestamp = ts

	if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
		entry.Metadata = map[string]any{}
	}
	return entry, nil
}
